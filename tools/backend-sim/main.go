package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/canchas/libs/backendsim"
	"github.com/md-rashed-zaman/canchas/libs/config"
	otelx "github.com/md-rashed-zaman/canchas/libs/otel"
	"github.com/md-rashed-zaman/canchas/libs/runtime"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "backend-sim")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	ttl, err := config.Duration("TOKEN_TTL", time.Hour)
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	seed := backendsim.DefaultSeed()
	if path := config.String("SEED_FILE", ""); path != "" {
		if seed, err = backendsim.LoadSeed(path); err != nil {
			logger.Error("seed load failed", "path", path, "err", err)
			return
		}
	}

	var loc *time.Location
	if tz := config.String("TIMEZONE", ""); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			logger.Error("invalid TIMEZONE", "tz", tz, "err", err)
			return
		}
	}

	sim, err := backendsim.New(seed, backendsim.Options{
		Secret:   config.String("JWT_SECRET", "dev-secret"),
		TokenTTL: ttl,
		Location: loc,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("simulator setup failed", "err", err)
		return
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(sim, service),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("backend simulator listening", "port", port, "complexes", len(seed.Complexes), "fields", len(seed.Fields))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
