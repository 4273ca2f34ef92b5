package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/veilgeo/veilgeo/geocrypt"
	"github.com/veilgeo/veilgeo/geoindex"
	"github.com/veilgeo/veilgeo/geoquery"
	"github.com/veilgeo/veilgeo/ingest"
	"github.com/veilgeo/veilgeo/poistore"
	"github.com/veilgeo/veilgeo/server"

	_ "net/http/pprof"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"
)

func main() {
	app := &cli.App{
		Name:        "veilgeo",
		Description: "Privacy-preserving POI search over encrypted coordinates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "key",
				Usage: "master key for the coordinate transform",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the poi search api",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      "points",
						Aliases:   []string{"p"},
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
					},
					&cli.Float64Flag{
						Name:  "max-radius",
						Value: geoquery.DefaultMaxRadiusKm,
					},
				},
				Action: serve,
			},
			{
				Name:    "ingest",
				Aliases: []string{"i"},
				Usage:   "encrypts a plaintext poi dataset into a snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      "input",
						Aliases:   []string{"in"},
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "points",
						Aliases:   []string{"p"},
						Required:  true,
						TakesFile: true,
					},
					&cli.IntFlag{
						Name:        "threads",
						Aliases:     []string{"t"},
						DefaultText: "max",
					},
					&cli.StringFlag{
						Name:        "pprof.listen",
						DefaultText: "",
					},
					&cli.BoolFlag{
						Name:        "pprof.profile",
						DefaultText: "",
					},
				},
				Action: runIngest,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func masterKey(ctx *cli.Context) (string, error) {
	key := ctx.String("key")
	if key == "" {
		key = os.Getenv("VEILGEO_MASTER_KEY")
	}
	if key == "" {
		return "", fmt.Errorf("master key required (flag --key or VEILGEO_MASTER_KEY)")
	}
	return key, nil
}

func runIngest(ctx *cli.Context) error {
	log := slog.Default()

	key, err := masterKey(ctx)
	if err != nil {
		return err
	}

	threads := ctx.Int("threads")
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	log = log.With("threads", threads)

	if pprofListen := ctx.String("pprof.listen"); pprofListen != "" {
		go func() {
			log.Info("Starting pprof server")
			err := http.ListenAndServe(pprofListen, nil)
			if err != nil {
				log.Error("Error starting pprof server", "error", err)
			}
		}()
	}

	if ctx.Bool("pprof.profile") {
		f, err := os.OpenFile("profile.cpu.pprof", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("error creating pprof file: %w", err)
		}
		err = pprof.StartCPUProfile(f)
		if err != nil {
			return fmt.Errorf("error starting pprof: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	ing := ingest.New(geocrypt.NewTransform(key), threads)
	summary, err := ing.Run(ctx.Context, ctx.String("input"), ctx.String("points"))
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Ingestion complete: %d records (%d skipped) in %s\n",
		summary.Total, summary.Skipped, summary.Elapsed)
	return nil
}

func serve(ctx *cli.Context) error {
	key, err := masterKey(ctx)
	if err != nil {
		return err
	}

	slog.Info("Loading poi snapshot")
	snap, err := poistore.LoadFromFile(ctx.String("points"))
	if err != nil {
		return err
	}

	transform := geocrypt.NewTransform(key)

	index := geoindex.New()
	index.Build(snap.Records)

	resolver := geoquery.NewMemoryResolver()
	resolver.PutAll(snap.Plain)

	engine, err := geoquery.NewEngine(transform, index, geoquery.WithResolver(resolver))
	if err != nil {
		return err
	}

	return server.Run(ctx.Context, ctx.String("listen"), server.Config{
		Engine:      engine,
		Index:       index,
		Transform:   transform,
		Resolver:    resolver,
		MaxRadiusKm: ctx.Float64("max-radius"),
	})
}
