/*
Copyright © 2025 the AERIS authors.
This file is part of AERIS.

AERIS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AERIS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AERIS.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command aeris runs the pollution-aware navigation backend: the HTTP
// API, the scheduled ingestion and scoring worker, and one-shot
// maintenance commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aerisnav/aeris/alerts"
	"github.com/aerisnav/aeris/geocode"
	"github.com/aerisnav/aeris/harmony"
	"github.com/aerisnav/aeris/ingest"
	"github.com/aerisnav/aeris/internal/blob"
	"github.com/aerisnav/aeris/internal/cache"
	"github.com/aerisnav/aeris/internal/config"
	"github.com/aerisnav/aeris/internal/sched"
	"github.com/aerisnav/aeris/internal/store"
	"github.com/aerisnav/aeris/routing"
	"github.com/aerisnav/aeris/server"
	"github.com/aerisnav/aeris/upes"
	"github.com/aerisnav/aeris/weather"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aeris",
		Short:         "Pollution-aware navigation and alerting backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd(), workerCmd(), ingestCmd(), upesCmd(), migrateCmd())
	return root
}

// deps is the shared process state built from one Config.
type deps struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *store.Store
	cache   cache.Cache
	harmony *harmony.Client
	weather *weather.Client
	blob    *blob.Store
}

func buildDeps(ctx context.Context, needDB bool) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	c, err := cache.New(cfg.RedisURL, log)
	if err != nil {
		log.WithError(err).Warn("cache unavailable, degrading to no-op")
		c = cache.Noop{}
	}
	d := &deps{
		cfg:   cfg,
		log:   log,
		cache: c,
		harmony: harmony.New(cfg.HarmonyBaseURL, harmony.Credentials{
			Token:    cfg.BearerToken,
			Username: cfg.EarthdataUsername,
			Password: cfg.EarthdataPassword,
		}, log),
		weather: weather.New(cfg.WeatherBaseURL, cfg.WeatherAPIKey, log),
	}
	if needDB {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		d.store, err = store.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
	}
	if cfg.ObjectStorageConfigured() {
		d.blob, err = blob.New(ctx, blob.Config{
			Bucket:          cfg.ObjectStorageBucket,
			Endpoint:        cfg.ObjectStorageEndpoint,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.ObjectStorageAccessKey,
			SecretAccessKey: cfg.ObjectStorageSecretKey,
		})
		if err != nil {
			log.WithError(err).Warn("object storage unavailable, audit uploads disabled")
			d.blob = nil
		}
	}
	return d, nil
}

func (d *deps) close() {
	if d.store != nil {
		d.store.Close()
	}
}

func (d *deps) upesEngine() *upes.Engine {
	b := d.cfg.TempoBBox
	return &upes.Engine{
		Spec:         upes.NewGridSpec(b.West, b.South, b.East, b.North, d.cfg.UPESGridResolution),
		Grid:         d.store,
		Weather:      d.weather,
		Cache:        d.cache,
		OutputBase:   d.cfg.UPESOutputBase,
		EMALambda:    d.cfg.UPESEMALambda,
		TrafficAlpha: d.cfg.UPESTrafficAlpha,
		Log:          d.log,
	}
}

func (d *deps) routeEngine() *routing.Engine {
	return &routing.Engine{
		Roads:         d.store,
		Cache:         d.cache,
		FinalScoreDir: d.upesEngine().FinalDir(),
		Enabled:       d.cfg.RouteOptimizationEnabled,
		BufferKM:      d.cfg.RouteOSMBufferKM,
		CacheTTL:      d.cfg.RouteResultCacheTTL,
		Log:           d.log,
	}
}

func (d *deps) alertEngine() *alerts.Engine {
	return &alerts.Engine{
		Store:         d.store,
		Weather:       d.weather,
		Webhook:       alerts.NewWebhook(d.cfg.AlertsWebhookURL, d.log),
		FinalScoreDir: d.upesEngine().FinalDir(),
		Config: alerts.Config{
			DeteriorationBasePct: d.cfg.AlertsDeteriorationBasePct,
			HazardThreshold:      d.cfg.AlertsHazardThreshold,
			WindSpeedMinKPH:      d.cfg.AlertsWindSpeedMinKPH,
			WindAngleDeg:         d.cfg.AlertsWindAngleDeg,
		},
		Log: d.log,
	}
}

func (d *deps) ingestWorker() *ingest.Worker {
	b := d.cfg.TempoBBox
	return &ingest.Worker{
		Fetcher:  d.harmony,
		Store:    d.store,
		Archiver: d.blob,
		Cache:    d.cache,
		BBox:     harmony.BBox{West: b.West, South: b.South, East: b.East, North: b.North},
		MaxCells: d.cfg.IngestMaxCells,
		Chunk:    d.cfg.IngestChunkSize,
		WorkDir:  d.cfg.IngestWorkDir,
		Log:      d.log,
	}
}

func (d *deps) rasterResolver() *ingest.Resolver {
	return &ingest.Resolver{
		Index:    d.store,
		Blob:     d.blob,
		LocalDir: d.cfg.IngestWorkDir,
		Log:      d.log,
	}
}

// followUp is one post-ingestion task. A fresh satellite hour must be
// rescored before saved-route exposure is recomputed, so order matters.
type followUp struct {
	name string
	run  func(ctx context.Context) error
}

// runFollowUps chains follow-ups in order; a failing step is logged
// and the rest still run.
func runFollowUps(log logrus.FieldLogger, steps []followUp) func(ctx context.Context) {
	return func(ctx context.Context) {
		for _, st := range steps {
			if err := st.run(ctx); err != nil {
				log.WithError(err).WithField("task", st.name).Warn("post-ingest follow-up failed")
			}
		}
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			d, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer d.close()

			s := &server.Server{
				Store:     d.store,
				Cache:     d.cache,
				Weather:   d.weather,
				Geocoder:  geocode.New(d.cfg.GeocodeBaseURL, ""),
				Optimizer: d.routeEngine(),
				Rasters:   d.rasterResolver(),
				UPESBase:  d.cfg.UPESOutputBase,
				JWTSecret: d.cfg.SecretKey,
				TokenTTL:  d.cfg.AccessTokenExpire,
				Log:       d.log,
			}
			srv := &http.Server{
				Addr:              d.cfg.ListenAddr,
				Handler:           s.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdown, stop := context.WithTimeout(context.Background(), 15*time.Second)
				defer stop()
				srv.Shutdown(shutdown)
			}()
			d.log.WithField("addr", d.cfg.ListenAddr).Info("serving")
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the hourly ingest/score/alert beat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			d, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer d.close()

			worker := d.ingestWorker()
			engine := d.upesEngine()
			alertEngine := d.alertEngine()
			worker.OnNewData = runFollowUps(d.log, []followUp{
				{"compute_upes_hourly", func(ctx context.Context) error {
					_, err := engine.Run(ctx)
					if err == upes.ErrNoData {
						return nil
					}
					return err
				}},
				{"recompute_saved_route_exposure", func(ctx context.Context) error {
					_, err := alertEngine.ScoreSavedRoutes(ctx)
					return err
				}},
			})

			s := &sched.Scheduler{
				Log: d.log,
				Tasks: []sched.Task{
					{Name: "fetch_tempo_hourly", Minute: 0, Timeout: 20 * time.Minute,
						Run: func(ctx context.Context) error {
							_, err := worker.RunCycle(ctx)
							return err
						}},
					{Name: "run_upes", Minute: 15, Timeout: 10 * time.Minute,
						Run: func(ctx context.Context) error {
							_, err := engine.Run(ctx)
							if err == upes.ErrNoData {
								d.log.Info("upes: pollution grid empty, nothing to score")
								return nil
							}
							return err
						}},
					{Name: "compute_saved_route_upes_scores", Minute: 20, Timeout: 10 * time.Minute,
						Run: func(ctx context.Context) error {
							_, err := alertEngine.ScoreSavedRoutes(ctx)
							return err
						}},
					{Name: "run_alert_pipeline", Minute: 25, Timeout: 10 * time.Minute,
						Run: func(ctx context.Context) error {
							_, err := alertEngine.RunPipeline(ctx)
							return err
						}},
				},
			}
			d.log.Info("worker beat started")
			err = s.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func ingestCmd() *cobra.Command {
	var hour string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			d, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer d.close()

			worker := d.ingestWorker()
			var res *ingest.CycleResult
			if hour != "" {
				start, err := time.Parse("2006-01-02T15", hour)
				if err != nil {
					return fmt.Errorf("parsing --hour: %w", err)
				}
				res, err = worker.RunWindow(ctx, start, start.Add(time.Hour))
				if err != nil {
					return err
				}
			} else if res, err = worker.RunCycle(ctx); err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
	cmd.Flags().StringVar(&hour, "hour", "", "backfill hour, e.g. 2025-06-03T14 (UTC)")
	return cmd
}

func upesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upes",
		Short: "Run one UPES scoring pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			d, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer d.close()

			rl, err := d.upesEngine().Run(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(rl)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			return store.Migrate(cfg.DatabaseURL)
		},
	}
}
