// Package geoquery orchestrates a privacy-preserving POI search: token
// generation, index pruning, predicate evaluation, plaintext resolution
// and ranking, with a fingerprint-keyed result cache in front.
package geoquery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/veilgeo/veilgeo/geocrypt"
	"github.com/veilgeo/veilgeo/geoindex"
	"github.com/veilgeo/veilgeo/geomodel"
	"github.com/veilgeo/veilgeo/resultcache"
)

var meter = otel.Meter("github.com/veilgeo/veilgeo/geoquery")

const earthRadiusKm = 6371.0

// Engine owns one transform/index/cache triple. There is no package
// state: independent engines coexist, each with its own cache and index.
type Engine struct {
	transform *geocrypt.Transform
	index     *geoindex.Index
	cache     *resultcache.Cache[QueryResult]
	resolver  PlaintextResolver
	evaluate  func(geomodel.EncryptedPoint, geocrypt.QueryToken) bool

	resolveConcurrency int
	log                *slog.Logger

	metricQueries     metric.Int64Counter
	metricCacheHits   metric.Int64Counter
	metricCacheMisses metric.Int64Counter
}

// Timings are per-stage wall-clock durations in milliseconds, rounded to
// two decimals.
type Timings struct {
	TokenMs     float64 `json:"token_ms"`
	SearchMs    float64 `json:"search_ms"`
	PredicateMs float64 `json:"predicate_ms"`
	ResolveMs   float64 `json:"resolve_ms"`
	TotalMs     float64 `json:"total_ms"`
}

type Metadata struct {
	Timings    Timings `json:"timings"`
	Candidates int     `json:"candidates"`
	Matches    int     `json:"matches"`
	Returned   int     `json:"returned"`
}

type QueryResult struct {
	Success  bool                   `json:"success"`
	QueryID  string                 `json:"query_id"`
	Results  []geomodel.ResolvedPOI `json:"results"`
	Error    string                 `json:"error,omitempty"`
	Metadata Metadata               `json:"metadata"`
}

func NewEngine(transform *geocrypt.Transform, index *geoindex.Index, opts ...EngineOption) (*Engine, error) {
	options := engineOptions{
		cacheCapacity:      resultcache.DefaultCapacity,
		cacheTTL:           resultcache.DefaultTTL,
		evaluate:           geocrypt.Evaluate,
		resolveConcurrency: 8,
		logger:             slog.Default(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	e := &Engine{
		transform:          transform,
		index:              index,
		cache:              resultcache.New[QueryResult](options.cacheCapacity, options.cacheTTL),
		resolver:           options.resolver,
		evaluate:           options.evaluate,
		resolveConcurrency: options.resolveConcurrency,
		log:                options.logger.With("component", "geoquery"),
	}

	var err error
	if e.metricQueries, err = meter.Int64Counter("queries_total"); err != nil {
		return nil, err
	}
	if e.metricCacheHits, err = meter.Int64Counter("query_cache_hits_total"); err != nil {
		return nil, err
	}
	if e.metricCacheMisses, err = meter.Int64Counter("query_cache_misses_total"); err != nil {
		return nil, err
	}
	return e, nil
}

// Fingerprint is the normalized cache key of a query. It is derived from
// the rounded plaintext parameters, never from the encrypted token, so
// semantically identical queries collapse to one slot regardless of the
// noise in any particular token.
func Fingerprint(lat, lng, radiusKm float64) string {
	return fmt.Sprintf("%.3f_%.3f_%.1f", lat, lng, radiusKm)
}

// ExecuteQuery runs one search against the engine. Coordinates and
// radius are assumed pre-validated at the caller boundary.
//
// Any failure between token generation and ranking is converted into a
// failed QueryResult; nothing panics out to the caller.
func (e *Engine) ExecuteQuery(ctx context.Context, lat, lng, radiusKm float64, requesterID string, opts Options) (res QueryResult) {
	queryID := uuid.NewString()
	totalStart := time.Now()
	fingerprint := Fingerprint(lat, lng, radiusKm)

	e.metricQueries.Add(ctx, 1)

	if opts.UseCache {
		if cached, ok := e.cache.Get(fingerprint); ok {
			e.metricCacheHits.Add(ctx, 1)
			e.log.Debug("query cache hit", "fingerprint", fingerprint, "requester", requesterID)
			return cached
		}
		e.metricCacheMisses.Add(ctx, 1)
		e.log.Debug("query cache miss", "fingerprint", fingerprint)
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("query execution failed",
				"query_id", queryID,
				"requester", requesterID,
				"error", fmt.Sprint(r))
			res = QueryResult{
				QueryID: queryID,
				Error:   fmt.Sprint(r),
				Results: []geomodel.ResolvedPOI{},
			}
		}
	}()

	var timings Timings

	stage := time.Now()
	token := e.transform.GenerateToken(lat, lng, radiusKm)
	timings.TokenMs = msSince(stage)
	e.log.Debug("query token generated", "query_id", queryID, "radius_norm", token.RadiusNorm)

	stage = time.Now()
	candidates := e.index.Search(token.Bounds)
	timings.SearchMs = msSince(stage)
	e.log.Debug("index searched", "query_id", queryID, "candidates", len(candidates))

	stage = time.Now()
	matches := candidates[:0:0]
	for _, rec := range candidates {
		if e.evaluate(rec.Location, token) {
			matches = append(matches, rec)
		}
	}
	timings.PredicateMs = msSince(stage)
	e.log.Debug("predicate evaluated", "query_id", queryID, "matches", len(matches))

	stage = time.Now()
	results := e.resolve(ctx, matches, lat, lng, opts.Decrypt)
	timings.ResolveMs = msSince(stage)

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	timings.TotalMs = msSince(totalStart)
	res = QueryResult{
		Success: true,
		QueryID: queryID,
		Results: results,
		Metadata: Metadata{
			Timings:    timings,
			Candidates: len(candidates),
			Matches:    len(matches),
			Returned:   len(results),
		},
	}

	if opts.UseCache {
		e.cache.Set(fingerprint, res)
	}

	e.log.Info("query executed",
		"query_id", queryID,
		"requester", requesterID,
		"candidates", len(candidates),
		"matches", len(matches),
		"returned", len(results),
		"total_ms", timings.TotalMs)
	return res
}

// resolve turns matching records into ranked results. With decrypt off,
// or no resolver wired, only the opaque fields are returned and distance
// stays 0. Resolution runs outside the index critical section.
func (e *Engine) resolve(ctx context.Context, matches []geomodel.POIRecord, lat, lng float64, decrypt bool) []geomodel.ResolvedPOI {
	results := make([]geomodel.ResolvedPOI, len(matches))
	if len(matches) == 0 {
		return results
	}

	if !decrypt || e.resolver == nil {
		for i, rec := range matches {
			results[i] = geomodel.ResolvedPOI{ID: rec.ID, Category: rec.Category}
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.resolveConcurrency)
	for i, rec := range matches {
		g.Go(func() error {
			plain, ok := e.resolver.Resolve(gctx, rec)
			if !ok {
				results[i] = geomodel.ResolvedPOI{ID: rec.ID, Category: rec.Category}
				return nil
			}
			results[i] = geomodel.ResolvedPOI{
				ID:          rec.ID,
				Name:        plain.Name,
				Address:     plain.Address,
				Description: plain.Description,
				Category:    rec.Category,
				Lat:         plain.Lat(),
				Lng:         plain.Lng(),
				DistanceKm:  haversineKm(lat, lng, plain.Lat(), plain.Lng()),
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// haversineKm is the great-circle distance with the fixed 6371 km Earth
// radius the ranking contract expects.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLng := (lng2 - lng1) * toRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func msSince(start time.Time) float64 {
	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	return math.Round(ms*100) / 100
}
