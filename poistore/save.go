// Package poistore persists encrypted POI datasets as versioned binary
// snapshots: magic bytes, a little-endian compatibility level, then a
// gob-encoded payload, optionally zstd-compressed on disk.
package poistore

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/veilgeo/veilgeo/geomodel"
)

var magicBytes = []byte("VGEO")

const compatibilityLevel uint32 = 1

type Metadata struct {
	Version uint32
	Created time.Time
}

// Snapshot is a full encrypted dataset plus the plaintext side table the
// resolver collaborator serves from. The side table never leaves the
// server.
type Snapshot struct {
	Metadata Metadata
	Records  []geomodel.POIRecord
	Plain    map[string]geomodel.PlainPOI
}

func Save(w io.Writer, snap Snapshot) error {
	if _, err := w.Write(magicBytes); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, compatibilityLevel); err != nil {
		return err
	}
	if snap.Metadata.Created.IsZero() {
		snap.Metadata.Created = time.Now()
	}
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("error encoding snapshot: %w", err)
	}
	return nil
}

// SaveToFile writes a snapshot, zstd-compressed when the name ends in
// .zst.
func SaveToFile(name string, snap Snapshot) error {
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("can`t create snapshot file: %w", err)
	}
	defer file.Close()

	var w io.Writer = file
	if strings.HasSuffix(name, ".zst") {
		enc, err := zstd.NewWriter(file)
		if err != nil {
			return fmt.Errorf("can`t create zstd writer: %w", err)
		}
		defer enc.Close()
		w = enc
	}

	return Save(w, snap)
}
