package geoquery

import (
	"log/slog"
	"time"

	"github.com/veilgeo/veilgeo/geocrypt"
	"github.com/veilgeo/veilgeo/geomodel"
)

// Options steer a single query execution.
type Options struct {
	// UseCache consults and populates the result cache.
	UseCache bool
	// Decrypt resolves plaintext attributes and true distances for the
	// matching records.
	Decrypt bool
	// Limit truncates the ranked result list; 0 means unlimited.
	Limit int
}

func DefaultOptions() Options {
	return Options{UseCache: true, Decrypt: true}
}

type engineOptions struct {
	cacheCapacity      int
	cacheTTL           time.Duration
	resolver           PlaintextResolver
	evaluate           func(geomodel.EncryptedPoint, geocrypt.QueryToken) bool
	resolveConcurrency int
	logger             *slog.Logger
}

type EngineOption interface {
	apply(*engineOptions)
}

type cacheConfig struct {
	capacity int
	ttl      time.Duration
}

func (c cacheConfig) apply(o *engineOptions) {
	o.cacheCapacity = c.capacity
	o.cacheTTL = c.ttl
}

// Default: 100 entries, 5 minute TTL
func WithCache(capacity int, ttl time.Duration) EngineOption {
	return cacheConfig{capacity: capacity, ttl: ttl}
}

type resolverOption struct {
	resolver PlaintextResolver
}

func (r resolverOption) apply(o *engineOptions) {
	o.resolver = r.resolver
}

func WithResolver(resolver PlaintextResolver) EngineOption {
	return resolverOption{resolver: resolver}
}

type evaluatorOption struct {
	evaluate func(geomodel.EncryptedPoint, geocrypt.QueryToken) bool
}

func (e evaluatorOption) apply(o *engineOptions) {
	o.evaluate = e.evaluate
}

// WithEvaluator overrides the membership predicate. Default is
// geocrypt.Evaluate; tests substitute their own.
func WithEvaluator(evaluate func(geomodel.EncryptedPoint, geocrypt.QueryToken) bool) EngineOption {
	return evaluatorOption{evaluate: evaluate}
}

type resolveConcurrency int

func (r resolveConcurrency) apply(o *engineOptions) {
	o.resolveConcurrency = int(r)
}

// Default: 8
func WithResolveConcurrency(n int) EngineOption {
	return resolveConcurrency(n)
}

type engineLogger struct {
	logger *slog.Logger
}

func (l engineLogger) apply(o *engineOptions) {
	o.logger = l.logger
}

func WithLogger(logger *slog.Logger) EngineOption {
	return engineLogger{logger: logger}
}
