// Package ingest encrypts plaintext POI datasets into searchable
// snapshots. Encryption is CPU-bound and embarrassingly parallel, so
// records fan out over a worker pool.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"github.com/veilgeo/veilgeo/geocrypt"
	"github.com/veilgeo/veilgeo/geomodel"
	"github.com/veilgeo/veilgeo/geoquery"
	"github.com/veilgeo/veilgeo/internal/stats"
	"github.com/veilgeo/veilgeo/poistore"
)

const statsInterval = 5 * time.Second

type Ingestor struct {
	transform *geocrypt.Transform
	threads   int
	log       *slog.Logger
}

type Summary struct {
	Total   int
	Skipped int
	Elapsed time.Duration
}

func New(transform *geocrypt.Transform, threads int) *Ingestor {
	if threads < 1 {
		threads = 1
	}
	return &Ingestor{
		transform: transform,
		threads:   threads,
		log:       slog.Default().With("component", "ingest"),
	}
}

// Run reads plaintext POIs from input, encrypts them and writes a
// snapshot to output. Records with out-of-range coordinates are skipped
// with a warning, one bad row does not sink a bulk load.
func (ing *Ingestor) Run(ctx context.Context, input, output string) (Summary, error) {
	start := time.Now()

	pois, err := ReadCSV(input)
	if err != nil {
		return Summary{}, fmt.Errorf("error reading input: %w", err)
	}
	ing.log.Info("input loaded", "pois", humanize.Comma(int64(len(pois))))

	collector, err := stats.NewCollector(statsInterval)
	if err != nil {
		return Summary{}, err
	}
	collector.Start()

	records := make([]geomodel.POIRecord, len(pois))
	skipped := make([]bool, len(pois))

	bar := pb.StartNew(len(pois))
	bar.Set("prefix", "encrypting POIs ")

	p := pool.New().WithMaxGoroutines(ing.threads)
	for i, poi := range pois {
		p.Go(func() {
			defer bar.Increment()
			if err := geoquery.ValidateCoordinates(poi.Lat(), poi.Lng()); err != nil {
				ing.log.Warn("skipping poi", "id", poi.ID, "error", err)
				skipped[i] = true
				return
			}
			loc := ing.transform.EncryptPoint(poi.Lat(), poi.Lng())
			records[i] = geomodel.POIRecord{
				ID:       poi.ID,
				Location: loc,
				Bounds:   geomodel.PointBox(loc),
				Category: poi.Category,
			}
		})
	}
	p.Wait()
	bar.Finish()

	snap := poistore.Snapshot{
		Metadata: poistore.Metadata{Version: 1, Created: time.Now()},
		Plain:    make(map[string]geomodel.PlainPOI, len(pois)),
	}
	summary := Summary{}
	for i, poi := range pois {
		if skipped[i] {
			summary.Skipped++
			continue
		}
		snap.Records = append(snap.Records, records[i])
		snap.Plain[poi.ID] = poi
	}
	summary.Total = len(snap.Records)

	if err := poistore.SaveToFile(output, snap); err != nil {
		return Summary{}, fmt.Errorf("error saving snapshot: %w", err)
	}

	runStats := collector.Stop()
	summary.Elapsed = time.Since(start)
	ing.log.Info("ingestion complete",
		"records", summary.Total,
		"skipped", summary.Skipped,
		"elapsed", summary.Elapsed,
		"peak_rss", humanize.Bytes(runStats.PeakProcessRSS),
		"avg_cpu", fmt.Sprintf("%.1f%%", runStats.AvgCPUPercent))
	return summary, nil
}
