package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/valyala/fasthttp"

	"github.com/veilgeo/veilgeo/geocrypt"
	"github.com/veilgeo/veilgeo/geoindex"
	"github.com/veilgeo/veilgeo/geomodel"
	"github.com/veilgeo/veilgeo/geoquery"
)

func newTestServer(t testing.TB) *server {
	t.Helper()

	transform := geocrypt.NewTransform("server-test-key")
	index := geoindex.New()
	resolver := geoquery.NewMemoryResolver()

	engine, err := geoquery.NewEngine(transform, index,
		geoquery.WithResolver(resolver),
		geoquery.WithEvaluator(func(geomodel.EncryptedPoint, geocrypt.QueryToken) bool {
			return true
		}))
	if err != nil {
		t.Fatal(err)
	}

	s := &server{
		cfg: Config{
			Engine:      engine,
			Index:       index,
			Transform:   transform,
			Resolver:    resolver,
			MaxRadiusKm: geoquery.DefaultMaxRadiusKm,
		},
	}
	if s.metricQueryCallCount, err = meter.Int64Counter("http_query_call_total"); err != nil {
		t.Fatal(err)
	}
	if s.metricInsertCallCount, err = meter.Int64Counter("http_insert_call_total"); err != nil {
		t.Fatal(err)
	}
	if s.metricRemoveCallCount, err = meter.Int64Counter("http_remove_call_total"); err != nil {
		t.Fatal(err)
	}
	return s
}

// requestCtx builds a served request context. Init wires the fake server
// so the ctx works as a context.Context; a zero RequestCtx has no done
// channel and panics once request-scoped work waits on it.
func requestCtx() *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fasthttp.Request{}, nil, nil)
	return ctx
}

func queryCtx(lat, lon, radius string) *fasthttp.RequestCtx {
	ctx := requestCtx()
	ctx.SetUserValue("lat", lat)
	ctx.SetUserValue("lon", lon)
	ctx.SetUserValue("radius", radius)
	return ctx
}

func TestQueryHandler(t *testing.T) {
	s := newTestServer(t)

	ctx := queryCtx("40.7128", "-74.0060", "5")
	s.QueryHandler(ctx)

	if ctx.Response.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	var res geoquery.QueryResult
	if err := json.Unmarshal(ctx.Response.Body(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.QueryID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestQueryHandlerResolvesMatches(t *testing.T) {
	s := newTestServer(t)

	poi := geomodel.PlainPOI{
		ID:       "p1",
		Name:     "Corner Cafe",
		Category: "cafe",
		Point:    orb.Point{-74.0, 40.7},
	}
	s.cfg.Resolver.Put(poi)
	s.cfg.Index.Insert(geomodel.POIRecord{
		ID:       poi.ID,
		Location: s.cfg.Transform.EncryptPoint(poi.Lat(), poi.Lng()),
		Bounds:   geomodel.Box{MinX: -1e9, MinY: -1e9, MaxX: 1e9, MaxY: 1e9},
		Category: poi.Category,
	})

	ctx := queryCtx("40.7128", "-74.0060", "5")
	s.QueryHandler(ctx)
	if ctx.Response.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}

	var res geoquery.QueryResult
	if err := json.Unmarshal(ctx.Response.Body(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if len(res.Results) != 1 || res.Results[0].Name != "Corner Cafe" {
		t.Fatalf("expected the resolved poi, got %+v", res.Results)
	}
	if res.Results[0].DistanceKm <= 0 {
		t.Fatalf("expected a positive distance, got %v", res.Results[0].DistanceKm)
	}
}

func TestQueryHandlerRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]*fasthttp.RequestCtx{
		"unparsable latitude":  queryCtx("not-a-float", "-74.0", "5"),
		"latitude over 90":     queryCtx("91", "-74.0", "5"),
		"longitude under -180": queryCtx("40.7", "-181", "5"),
		"zero radius":          queryCtx("40.7", "-74.0", "0"),
		"radius over max":      queryCtx("40.7", "-74.0", "51"),
	}
	for name, ctx := range cases {
		t.Run(name, func(t *testing.T) {
			s.QueryHandler(ctx)
			if ctx.Response.StatusCode() != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", ctx.Response.StatusCode())
			}
		})
	}
}

func TestQueryHandlerOptions(t *testing.T) {
	s := newTestServer(t)

	ctx := queryCtx("40.7128", "-74.0060", "5")
	ctx.Request.SetRequestURI("/poi/near/40.7128/-74.0060/5?cache=false&decrypt=false&limit=2")
	s.QueryHandler(ctx)

	if ctx.Response.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestInsertThenQueryAndRemove(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(geomodel.PlainPOI{
		ID:       "p1",
		Name:     "Corner Cafe",
		Category: "cafe",
		Point:    orb.Point{-74.0060, 40.7128},
	})
	ins := requestCtx()
	ins.Request.SetBody(body)
	s.InsertHandler(ins)
	if ins.Response.StatusCode() != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", ins.Response.StatusCode(), ins.Response.Body())
	}
	if stats := s.cfg.Index.Stats(); stats.TotalPOIs != 1 {
		t.Fatalf("expected 1 indexed poi, got %d", stats.TotalPOIs)
	}

	rm := requestCtx()
	rm.SetUserValue("id", "p1")
	s.RemoveHandler(rm)
	if rm.Response.StatusCode() != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rm.Response.StatusCode())
	}

	again := requestCtx()
	again.SetUserValue("id", "p1")
	s.RemoveHandler(again)
	if again.Response.StatusCode() != http.StatusNotFound {
		t.Fatalf("expected 404 for repeat removal, got %d", again.Response.StatusCode())
	}
}

func TestInsertHandlerRejectsBadBody(t *testing.T) {
	s := newTestServer(t)

	cases := map[string][]byte{
		"not json":   []byte("{"),
		"missing id": []byte(`{"name":"x","point":[0,0]}`),
		"bad coords": []byte(`{"id":"p1","point":[-74.0,123.0]}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := requestCtx()
			ctx.Request.SetBody(body)
			s.InsertHandler(ctx)
			if ctx.Response.StatusCode() != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", ctx.Response.StatusCode())
			}
		})
	}
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t)
	loc := s.cfg.Transform.EncryptPoint(40.7, -74.0)
	s.cfg.Index.Insert(geomodel.POIRecord{ID: "p1", Location: loc, Bounds: geomodel.PointBox(loc)})

	ctx := requestCtx()
	s.StatsHandler(ctx)
	if ctx.Response.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}

	var stats geoindex.Stats
	if err := json.Unmarshal(ctx.Response.Body(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalPOIs != 1 {
		t.Fatalf("expected 1 poi reported, got %+v", stats)
	}
}

func TestRunGracefulShutdown(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", s.cfg)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func BenchmarkQueryHandler(b *testing.B) {
	s := newTestServer(b)
	for i := 0; i < 100; i++ {
		loc := s.cfg.Transform.EncryptPoint(40.7+float64(i)*0.001, -74.0)
		s.cfg.Index.Insert(geomodel.POIRecord{ID: fmt.Sprintf("poi-%d", i), Location: loc, Bounds: geomodel.PointBox(loc)})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := queryCtx("40.7128", "-74.0060", "5")
		s.QueryHandler(ctx)
	}
}
