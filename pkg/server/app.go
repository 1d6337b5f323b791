package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "PriceSentinel/internal/domain/repository"
	"PriceSentinel/internal/middleware"
	"PriceSentinel/internal/service/broadcast"
	"PriceSentinel/internal/usecase"
	xhttp "PriceSentinel/pkg/http"
	pkgkafka "PriceSentinel/pkg/kafka"
	applogger "PriceSentinel/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Components are the long-running parts of the service. Loop and Consumer
// are optional: an instance either ingests or relays.
type Components struct {
	Logger   *applogger.Logger
	HTTP     *xhttp.Server
	Store    domrepo.ObservationStore
	Registry *broadcast.Registry
	Pipeline *middleware.SignalPipeline
	Loop     *usecase.IngestionLoop
	Consumer *pkgkafka.Consumer
	Relay    pkgkafka.MessageHandler

	ShutdownTimeout time.Duration
}

// App encapsulates the entire application lifecycle.
type App struct {
	c   Components
	log *applogger.Logger
}

func New(c Components) *App {
	l := c.Logger
	if l == nil {
		l = applogger.Nop()
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return &App{c: c, log: l.With(applogger.String("component", "app"))}
}

// Run starts everything and blocks until SIGINT/SIGTERM, ctx cancellation
// or a fatal component error, then shuts down in reverse order.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := a.c.Store.Init(initCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	if err := a.c.HTTP.Start(); err != nil {
		return err
	}

	if a.c.Consumer != nil && a.c.Relay != nil {
		a.c.Consumer.RegisterHandler(a.c.Relay)
		if err := a.c.Consumer.Start(); err != nil {
			a.stopHTTP()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("relay started", applogger.String("topic", a.c.Relay.Topic()))
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.c.Pipeline != nil {
		g.Go(func() error {
			a.c.Pipeline.Run(gctx)
			return nil
		})
	}
	if a.c.Loop != nil {
		g.Go(func() error {
			return a.c.Loop.Run(gctx)
		})
	}
	g.Go(func() error {
		select {
		case err := <-a.c.HTTP.Errors():
			return fmt.Errorf("http server: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	a.log.Info("running",
		applogger.Bool("ingest", a.c.Loop != nil),
		applogger.Bool("relay", a.c.Consumer != nil))

	<-gctx.Done()
	a.log.Info("shutting down")
	return a.shutdown(g)
}

func (a *App) shutdown(g *errgroup.Group) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.c.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer stop: %w", err))
		}
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	if a.c.Registry != nil {
		a.c.Registry.Close()
	}
	if err := a.c.HTTP.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		a.log.Error("shutdown finished with errors", applogger.Error(err))
	} else {
		a.log.Info("shutdown complete")
	}
	return err
}

func (a *App) stopHTTP() {
	ctx, cancel := context.WithTimeout(context.Background(), a.c.ShutdownTimeout)
	defer cancel()
	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.log.Warn("http stop", applogger.Error(err))
	}
}
