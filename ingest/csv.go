package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/veilgeo/veilgeo/geomodel"
)

// ReadCSV loads plaintext POIs from a csv file with columns
// id,name,lat,lng,category,address,description. A header row is detected
// and skipped.
func ReadCSV(name string) ([]geomodel.PlainPOI, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("can`t open input file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	var pois []geomodel.PlainPOI
	line := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv line %d: %w", line, err)
		}
		line++

		if len(row) < 4 {
			return nil, fmt.Errorf("csv line %d: expected at least 4 columns, got %d", line, len(row))
		}

		lat, latErr := strconv.ParseFloat(row[2], 64)
		lng, lngErr := strconv.ParseFloat(row[3], 64)
		if latErr != nil || lngErr != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("csv line %d: bad coordinates %q, %q", line, row[2], row[3])
		}

		poi := geomodel.PlainPOI{
			ID:    row[0],
			Name:  row[1],
			Point: orb.Point{lng, lat},
		}
		if len(row) > 4 {
			poi.Category = row[4]
		}
		if len(row) > 5 {
			poi.Address = row[5]
		}
		if len(row) > 6 {
			poi.Description = row[6]
		}
		pois = append(pois, poi)
	}

	return pois, nil
}
