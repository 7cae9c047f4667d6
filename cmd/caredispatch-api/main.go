// README: Entry point; loads config, wires services, starts HTTP server and the timeout sweeper.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"caredispatch/internal/config"
	httptransport "caredispatch/internal/http"
	"caredispatch/internal/infra"
	"caredispatch/internal/logging"
	"caredispatch/internal/modules/area"
	"caredispatch/internal/modules/matching"
	"caredispatch/internal/modules/order"
	"caredispatch/internal/modules/worker"
	"caredispatch/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Error("db init failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	geoIndex := matching.NewRedisGeoIndex(redisClient)
	workerStore := worker.NewPgStore(dbPool)
	orderStore := order.NewPgStore(dbPool)

	workerSvc := worker.NewService(workerStore, geoIndex)
	matchSvc := matching.NewService(geoIndex, workerStore, cfg.Matching)
	orderSvc := order.NewService(orderStore, matchSvc, workerStore, cfg.Matching).
		WithCompletionRecorder(workerSvc)

	if cfg.AMQP.URL != "" {
		notifier, err := notify.NewAMQPNotifier(cfg.AMQP.URL, log)
		if err != nil {
			log.Error("amqp init failed", "error", err)
			os.Exit(1)
		}
		defer notifier.Close()
		orderSvc.WithNotifier(notifier)
	} else {
		orderSvc.WithNotifier(notify.Nop{})
	}

	areas := area.NewResolver()
	if cfg.Maps.APIKey != "" {
		areas, err = area.NewResolverWithMaps(cfg.Maps.APIKey)
		if err != nil {
			log.Error("maps init failed", "error", err)
			os.Exit(1)
		}
	}

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Order:     orderSvc,
		Worker:    workerSvc,
		Area:      areas,
		JWTSecret: cfg.Auth.JWTSecret,
		Log:       log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go orderSvc.RunTimeoutSweeper(ctx)
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Info("listening", "addr", cfg.HTTP.Addr, "policy", cfg.Matching.Policy)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
