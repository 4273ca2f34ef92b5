package poistore

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
)

func Load(reader io.Reader, log *slog.Logger) (Snapshot, error) {
	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return Snapshot{}, fmt.Errorf("error reading magic bytes: %w", err)
	}
	if string(magic) != string(magicBytes) {
		return Snapshot{}, fmt.Errorf("not a poi snapshot: bad magic bytes %q", magic)
	}

	var level uint32
	if err := binary.Read(reader, binary.LittleEndian, &level); err != nil {
		return Snapshot{}, fmt.Errorf("error reading compatibility level: %w", err)
	}
	if level != compatibilityLevel {
		return Snapshot{}, fmt.Errorf("unsupported compatibility level: %d", level)
	}

	var snap Snapshot
	if err := gob.NewDecoder(reader).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("error decoding snapshot: %w", err)
	}

	log.Info("snapshot loaded",
		"version", snap.Metadata.Version,
		"created", snap.Metadata.Created,
		"records", len(snap.Records))
	return snap, nil
}

func LoadFromFile(name string) (Snapshot, error) {
	log := slog.Default()

	reader, err := openReader(name)
	if err != nil {
		return Snapshot{}, fmt.Errorf("error opening snapshot file: %w", err)
	}
	defer reader.Close()

	if stat, err := os.Stat(name); err == nil {
		log = log.With("size", humanize.Bytes(uint64(stat.Size())))
	}

	return Load(reader, log)
}

func openReader(name string) (io.ReadCloser, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("can`t open file error: %w", err)
	}

	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("can`t create zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	}

	return file, nil
}
