// Package geoindex maintains the searchable tree over transformed POI
// locations. It never sees plaintext coordinates: pruning works purely on
// bounding boxes in transformed space, membership is decided downstream.
package geoindex

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veilgeo/veilgeo/boxtree"
	"github.com/veilgeo/veilgeo/geomodel"
	"github.com/veilgeo/veilgeo/kv"
)

type Index struct {
	mu   sync.RWMutex
	tree *boxtree.Tree[string]

	// records is the reverse map from identifier to the full stored
	// record; reads happen on every search, so it is kept lock-free.
	records kv.KVS[string, geomodel.POIRecord]

	queries atomic.Int64
	fanout  int
	log     *slog.Logger
}

type BuildStats struct {
	TotalPOIs int           `json:"total_pois"`
	TreeNodes int           `json:"tree_nodes"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

type Stats struct {
	TotalPOIs int   `json:"total_pois"`
	TreeNodes int   `json:"tree_nodes"`
	Queries   int64 `json:"queries"`
}

func New(opts ...Option) *Index {
	options := options{
		fanout: boxtree.DefaultMaxEntries,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	return &Index{
		tree:    boxtree.New[string](options.fanout),
		records: kv.NewXMap[string, geomodel.POIRecord](),
		fanout:  options.fanout,
		log:     options.logger.With("component", "geoindex"),
	}
}

// recordBox returns the stored box of a record, deriving a degenerate
// point box when none was persisted with it.
func recordBox(rec geomodel.POIRecord) geomodel.Box {
	if rec.Bounds == (geomodel.Box{}) {
		return geomodel.PointBox(rec.Location)
	}
	return rec.Bounds
}

// Build replaces the whole index contents with a bulk load and resets the
// query counter. One STR pass keeps leaf occupancy balanced regardless of
// input order.
func (ix *Index) Build(records []geomodel.POIRecord) BuildStats {
	start := time.Now()

	items := make([]boxtree.Item[string], len(records))
	for i, rec := range records {
		items[i] = boxtree.Item[string]{Box: recordBox(rec), Value: rec.ID}
	}

	ix.mu.Lock()
	ix.tree = boxtree.New[string](ix.fanout)
	ix.tree.Load(items)
	ix.records.Clear()
	for _, rec := range records {
		ix.records.Set(rec.ID, rec)
	}
	ix.queries.Store(0)
	stats := BuildStats{
		TotalPOIs: ix.tree.Len(),
		TreeNodes: ix.tree.NodeCount(),
		Elapsed:   time.Since(start),
	}
	ix.mu.Unlock()

	ix.log.Info("index built",
		"total_pois", stats.TotalPOIs,
		"tree_nodes", stats.TreeNodes,
		"elapsed", stats.Elapsed)
	return stats
}

// Insert adds a single record without a full rebuild.
func (ix *Index) Insert(rec geomodel.POIRecord) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.tree.Insert(recordBox(rec), rec.ID)
	ix.records.Set(rec.ID, rec)
}

// Remove deletes the record with the given id, reporting whether anything
// was removed. An unknown id is an ordinary false, not an error.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records.Get(id)
	if !ok {
		return false
	}
	removed := ix.tree.Remove(recordBox(rec), id)
	ix.records.Delete(id)
	return removed
}

// Search returns every record whose stored box intersects the query
// bounds. The encrypted corner vectors are normalized first, min/max
// pairing is not geometrically ordered after encryption. Identifiers
// without a backing record are dropped silently.
func (ix *Index) Search(bounds geomodel.EncryptedBounds) []geomodel.POIRecord {
	ix.queries.Add(1)
	query := bounds.Box()

	ix.mu.RLock()
	var ids []string
	ix.tree.Search(query, func(_ geomodel.Box, id string) bool {
		ids = append(ids, id)
		return true
	})
	ix.mu.RUnlock()

	out := make([]geomodel.POIRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := ix.records.Get(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// GetAll returns every indexed record. Admin and debug use.
func (ix *Index) GetAll() []geomodel.POIRecord {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]geomodel.POIRecord, 0, ix.records.Len())
	ix.records.Range(func(_ string, rec geomodel.POIRecord) bool {
		out = append(out, rec)
		return true
	})
	return out
}

// Clear empties the index and its statistics.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.tree = boxtree.New[string](ix.fanout)
	ix.records.Clear()
	ix.queries.Store(0)
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return Stats{
		TotalPOIs: ix.tree.Len(),
		TreeNodes: ix.tree.NodeCount(),
		Queries:   ix.queries.Load(),
	}
}
