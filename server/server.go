package server

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/veilgeo/veilgeo/geocrypt"
	"github.com/veilgeo/veilgeo/geoindex"
	"github.com/veilgeo/veilgeo/geomodel"
	"github.com/veilgeo/veilgeo/geoquery"
)

const MaxBodySize = 32 * 1000 * 1000 // 32MB

var meter = otel.Meter("github.com/veilgeo/veilgeo/server")

// Config carries the collaborators the API layer fronts for.
type Config struct {
	Engine      *geoquery.Engine
	Index       *geoindex.Index
	Transform   *geocrypt.Transform
	Resolver    *geoquery.MemoryResolver
	MaxRadiusKm float64
}

func Run(ctx context.Context, address string, cfg Config) error {
	if err := setupTelemetry(ctx); err != nil {
		return fmt.Errorf("failed to initialize otel metrics: %w", err)
	}

	log := slog.Default()

	metricQueryCallCount, err := meter.Int64Counter("http_query_call_total")
	if err != nil {
		return err
	}
	metricInsertCallCount, err := meter.Int64Counter("http_insert_call_total")
	if err != nil {
		return err
	}
	metricRemoveCallCount, err := meter.Int64Counter("http_remove_call_total")
	if err != nil {
		return err
	}

	if cfg.MaxRadiusKm <= 0 {
		cfg.MaxRadiusKm = geoquery.DefaultMaxRadiusKm
	}
	s := &server{
		cfg: cfg,

		metricQueryCallCount:  metricQueryCallCount,
		metricInsertCallCount: metricInsertCallCount,
		metricRemoveCallCount: metricRemoveCallCount,
	}

	r := router.New()
	r.GET("/poi/near/{lat}/{lon}/{radius}", s.QueryHandler)
	r.POST("/poi", s.InsertHandler)
	r.DELETE("/poi/{id}", s.RemoveHandler)
	r.GET("/index/stats", s.StatsHandler)
	r.Handle(http.MethodGet, "/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	server := &fasthttp.Server{
		ReadTimeout:        time.Second,
		MaxRequestBodySize: MaxBodySize,
		Handler:            r.Handler,
	}

	go func() {
		log.Info("Server listening", "address", address)
		// ListenAndServe returns nil after a graceful shutdown
		if err := server.ListenAndServe(address); err != nil {
			stdlog.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	slog.Info("Server started")

	// wait cancel
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}

type server struct {
	cfg Config

	metricQueryCallCount  metric.Int64Counter
	metricInsertCallCount metric.Int64Counter
	metricRemoveCallCount metric.Int64Counter
}

func (s *server) QueryHandler(ctx *fasthttp.RequestCtx) {
	s.metricQueryCallCount.Add(ctx, 1)

	lat, err := pathFloat(ctx, "lat")
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}
	lon, err := pathFloat(ctx, "lon")
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}
	radius, err := pathFloat(ctx, "radius")
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}

	if err := geoquery.ValidateCoordinates(lat, lon); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := geoquery.ValidateRadius(radius, s.cfg.MaxRadiusKm); err != nil {
		badRequest(ctx, err)
		return
	}

	opts := geoquery.DefaultOptions()
	args := ctx.QueryArgs()
	if args.Has("cache") {
		opts.UseCache = args.GetBool("cache")
	}
	if args.Has("decrypt") {
		opts.Decrypt = args.GetBool("decrypt")
	}
	if limit, err := args.GetUint("limit"); err == nil {
		opts.Limit = limit
	}

	requester := string(ctx.Request.Header.Peek("X-Requester-ID"))
	res := s.cfg.Engine.ExecuteQuery(ctx, lat, lon, radius, requester, opts)

	out, err := json.Marshal(res)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
		ctx.Response.SetBodyString("failed to marshal response")
		return
	}

	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(out)
}

func (s *server) InsertHandler(ctx *fasthttp.RequestCtx) {
	s.metricInsertCallCount.Add(ctx, 1)

	var poi geomodel.PlainPOI
	if err := json.Unmarshal(ctx.Request.Body(), &poi); err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("failed to parse request: " + err.Error())
		return
	}

	if poi.ID == "" {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("poi id required")
		return
	}
	if err := geoquery.ValidateCoordinates(poi.Lat(), poi.Lng()); err != nil {
		badRequest(ctx, err)
		return
	}

	loc := s.cfg.Transform.EncryptPoint(poi.Lat(), poi.Lng())
	s.cfg.Index.Insert(geomodel.POIRecord{
		ID:       poi.ID,
		Location: loc,
		Bounds:   geomodel.PointBox(loc),
		Category: poi.Category,
	})
	if s.cfg.Resolver != nil {
		s.cfg.Resolver.Put(poi)
	}

	ctx.Response.SetStatusCode(http.StatusCreated)
}

func (s *server) RemoveHandler(ctx *fasthttp.RequestCtx) {
	s.metricRemoveCallCount.Add(ctx, 1)

	id := ctx.UserValue("id").(string)
	if !s.cfg.Index.Remove(id) {
		ctx.Response.SetStatusCode(http.StatusNotFound)
		return
	}
	if s.cfg.Resolver != nil {
		s.cfg.Resolver.Delete(id)
	}
	ctx.Response.SetStatusCode(http.StatusNoContent)
}

func (s *server) StatsHandler(ctx *fasthttp.RequestCtx) {
	out, err := json.Marshal(s.cfg.Index.Stats())
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
		return
	}
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(out)
}

func pathFloat(ctx *fasthttp.RequestCtx, name string) (float64, error) {
	return strconv.ParseFloat(ctx.UserValue(name).(string), 64)
}

func badRequest(ctx *fasthttp.RequestCtx, err error) {
	ctx.Response.SetStatusCode(http.StatusBadRequest)
	ctx.Response.SetBodyString(err.Error())
}
