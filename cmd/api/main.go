package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/rifaescolar/raffle-backend/api/controllers"
	"github.com/rifaescolar/raffle-backend/api/routes"
	"github.com/rifaescolar/raffle-backend/internal/cron"
	"github.com/rifaescolar/raffle-backend/internal/inventory"
	"github.com/rifaescolar/raffle-backend/internal/purchase"
	"github.com/rifaescolar/raffle-backend/internal/raffle"
	"github.com/rifaescolar/raffle-backend/internal/reservation"
	"github.com/rifaescolar/raffle-backend/internal/settlement"
	mpwebhook "github.com/rifaescolar/raffle-backend/internal/webhooks/mercadopago"
	"github.com/rifaescolar/raffle-backend/pkg/config"
	"github.com/rifaescolar/raffle-backend/pkg/db"
	"github.com/rifaescolar/raffle-backend/pkg/eventlog"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/mercadopago"
	"github.com/rifaescolar/raffle-backend/pkg/migrate"
	"github.com/rifaescolar/raffle-backend/pkg/redis"
)

const webhookMarkTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	params := routes.Params{
		Config: cfg,
		Logger: logg,
		Probes: map[string]controllers.Pinger{},
	}

	simulation := cfg.FeatureFlags.SimulationMode
	if simulation {
		logg.Warn(context.Background(), "simulation mode enabled, serving synthetic data without persistence")
		raffleSvc := raffle.NewService(nil, nil, logg, true)
		params.Raffles = raffleSvc
		params.Availability = reservation.NewService(nil, nil, nil, logg, true)
		params.Reservations = reservation.NewService(nil, nil, nil, logg, true)
		params.Purchases = purchase.NewService(nil, nil, nil, nil, logg, true)
	} else {
		dbClient, err := db.New(context.Background(), cfg.DB, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()

		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}

		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()

		gormDB := dbClient.DB()
		inv := inventory.NewRepository(gormDB)
		purchases := purchase.NewRepository(gormDB)
		events := eventlog.NewService(eventlog.NewRepository(gormDB), logg)

		raffleRepo := raffle.NewRepository(gormDB)
		raffleSvc := raffle.NewService(raffleRepo, inv, logg, false)
		reservationSvc := reservation.NewService(gormDB, inv, events, logg, false)
		purchaseSvc := purchase.NewService(gormDB, purchases, inv, events, logg, false)
		settlementSvc := settlement.NewService(gormDB, purchases, inv, events, logg)

		params.Probes["database"] = dbClient
		params.Probes["redis"] = redisClient
		params.Raffles = raffleSvc
		params.Availability = reservationSvc
		params.Reservations = reservationSvc
		params.Purchases = purchaseSvc
		params.Settlement = settlementSvc
		params.PrefRecorder = purchases

		// The HTTP cleanup trigger shares the worker's lock, so a triggered
		// sweep and a scheduled one never run at the same time.
		sweepJob, err := cron.NewSweepJob(cron.SweepJobParams{
			Logger:      logg,
			Settlement:  settlementSvc,
			HoldTimeout: cfg.Raffle.HoldTimeout,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create sweep job", err)
			os.Exit(1)
		}
		sweepLock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env), 0)
		if err != nil {
			logg.Error(context.Background(), "failed to create sweep lock", err)
			os.Exit(1)
		}
		cronSvc, err := cron.NewService(cron.ServiceParams{
			Logger:   logg,
			Registry: cron.NewRegistry(sweepJob),
			Lock:     sweepLock,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create cron service", err)
			os.Exit(1)
		}
		sweepRunner, err := cron.NewRunner(cronSvc, sweepJob)
		if err != nil {
			logg.Error(context.Background(), "failed to create sweep runner", err)
			os.Exit(1)
		}
		params.Sweep = sweepRunner

		if cfg.MercadoPago.AccessToken != "" {
			mpClient, err := mercadopago.NewClient(context.Background(), cfg.MercadoPago, logg)
			if err != nil {
				logg.Error(context.Background(), "failed to bootstrap mercado pago client", err)
				os.Exit(1)
			}
			guard, err := mpwebhook.NewIdempotencyGuard(redisClient, webhookMarkTTL, "mercadopago")
			if err != nil {
				logg.Error(context.Background(), "failed to create webhook guard", err)
				os.Exit(1)
			}
			webhookSvc, err := mpwebhook.NewService(mpwebhook.ServiceParams{
				Payments:   mpClient,
				Settlement: settlementSvc,
				Logger:     logg,
			})
			if err != nil {
				logg.Error(context.Background(), "failed to create webhook service", err)
				os.Exit(1)
			}
			params.PaymentsClient = mpClient
			params.WebhookGuard = guard
			params.WebhookService = webhookSvc
		} else {
			logg.Warn(context.Background(), "mercado pago access token missing, payment endpoints disabled")
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"simulation": simulation,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(params),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
