package geoquery_test

import (
	"testing"

	"github.com/veilgeo/veilgeo/geoquery"
)

func TestValidateCoordinates(t *testing.T) {
	if err := geoquery.ValidateCoordinates(51.5, -0.12); err != nil {
		t.Fatalf("expected valid coordinates, got %v", err)
	}
	if err := geoquery.ValidateCoordinates(-90, 180); err != nil {
		t.Fatalf("expected boundary coordinates valid, got %v", err)
	}
	if err := geoquery.ValidateCoordinates(91, 0); err == nil {
		t.Fatal("expected latitude 91 rejected")
	}
	if err := geoquery.ValidateCoordinates(0, -181); err == nil {
		t.Fatal("expected longitude -181 rejected")
	}
}

func TestValidateRadius(t *testing.T) {
	if err := geoquery.ValidateRadius(0); err == nil {
		t.Fatal("expected radius 0 rejected")
	}
	if err := geoquery.ValidateRadius(-5); err == nil {
		t.Fatal("expected radius -5 rejected")
	}
	if err := geoquery.ValidateRadius(51); err == nil {
		t.Fatal("expected radius 51 rejected with default max 50")
	}
	if err := geoquery.ValidateRadius(75, 100); err != nil {
		t.Fatalf("expected radius 75 accepted with max 100, got %v", err)
	}
	if err := geoquery.ValidateRadius(50); err != nil {
		t.Fatalf("expected radius at default max accepted, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	got := geoquery.Fingerprint(34.0522, -118.2437, 5)
	if got != "34.052_-118.244_5.0" {
		t.Fatalf("unexpected fingerprint %q", got)
	}

	// semantically identical queries collapse to the same slot
	if geoquery.Fingerprint(34.05221, -118.24369, 5.01) != geoquery.Fingerprint(34.0522, -118.2437, 5.04) {
		t.Fatal("expected rounded fingerprints to collapse")
	}
}
