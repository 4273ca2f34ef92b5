package poistore_test

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/veilgeo/veilgeo/geomodel"
	"github.com/veilgeo/veilgeo/poistore"
)

func testSnapshot() poistore.Snapshot {
	return poistore.Snapshot{
		Metadata: poistore.Metadata{Version: 3},
		Records: []geomodel.POIRecord{
			{
				ID:       "poi-1",
				Location: geomodel.EncryptedPoint{0.1, 0.2, 0.3, 0.4},
				Bounds:   geomodel.Box{MinX: 0.1, MinY: 0.2, MaxX: 0.1, MaxY: 0.2},
				Category: "cafe",
				EncName:  []byte{0xde, 0xad},
			},
			{
				ID:       "poi-2",
				Location: geomodel.EncryptedPoint{1.5, -0.7, 2.1, 0.05},
				Category: "park",
			},
		},
		Plain: map[string]geomodel.PlainPOI{
			"poi-1": {ID: "poi-1", Name: "Corner Cafe", Category: "cafe", Point: orb.Point{-74.0, 40.7}},
		},
	}
}

func assertSnapshotEqual(t *testing.T, want, got poistore.Snapshot) {
	t.Helper()

	if got.Metadata.Version != want.Metadata.Version {
		t.Fatalf("version: want %d, got %d", want.Metadata.Version, got.Metadata.Version)
	}
	if got.Metadata.Created.IsZero() {
		t.Fatal("expected created timestamp stamped on save")
	}
	if len(got.Records) != len(want.Records) {
		t.Fatalf("records: want %d, got %d", len(want.Records), len(got.Records))
	}
	for i, rec := range want.Records {
		g := got.Records[i]
		if g.ID != rec.ID || g.Category != rec.Category {
			t.Fatalf("record %d: want %+v, got %+v", i, rec, g)
		}
		if len(g.Location) != len(rec.Location) {
			t.Fatalf("record %d: location length changed", i)
		}
		for j := range rec.Location {
			if g.Location[j] != rec.Location[j] {
				t.Fatalf("record %d: location component %d changed", i, j)
			}
		}
		if !bytes.Equal(g.EncName, rec.EncName) {
			t.Fatalf("record %d: ciphertext changed", i)
		}
	}
	if got.Plain["poi-1"].Name != "Corner Cafe" {
		t.Fatalf("side table lost: %+v", got.Plain)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := poistore.Save(&buf, testSnapshot()); err != nil {
		t.Fatal(err)
	}

	loaded, err := poistore.Load(&buf, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	assertSnapshotEqual(t, testSnapshot(), loaded)
}

func TestFileRoundTrip(t *testing.T) {
	for _, name := range []string{"pois.vgeo", "pois.vgeo.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := poistore.SaveToFile(path, testSnapshot()); err != nil {
				t.Fatal(err)
			}

			loaded, err := poistore.LoadFromFile(path)
			if err != nil {
				t.Fatal(err)
			}
			assertSnapshotEqual(t, testSnapshot(), loaded)
		})
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	_, err := poistore.Load(bytes.NewReader([]byte("XXXX rest of the file")), slog.Default())
	if err == nil {
		t.Fatal("expected bad magic error")
	}
}

func TestLoadRejectsTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := poistore.Save(&buf, testSnapshot()); err != nil {
		t.Fatal(err)
	}

	_, err := poistore.Load(bytes.NewReader(buf.Bytes()[:6]), slog.Default())
	if err == nil {
		t.Fatal("expected decode error on truncated input")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := poistore.LoadFromFile(filepath.Join(t.TempDir(), "nope.vgeo"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
