package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/couchparty/relay/config"
	"github.com/couchparty/relay/liveness"
	httpServer "github.com/couchparty/relay/server/http"
	websocketServer "github.com/couchparty/relay/server/websocket"
	"github.com/couchparty/relay/service"
	store "github.com/couchparty/relay/storage/memory"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
	fs.StringP("ws-listen-addr", "w", ":6969", "websocket relay listen address")
	fs.StringP("log-level", "l", "debug", "log level")
	fs.Duration("status-interval", 0, "party status broadcast interval (0 uses config/default)")
	fs.Duration("liveness-interval", 0, "liveness sweep interval (0 uses config/default)")
	fs.String("termination-url", "", "webhook notified when a party is terminated")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(fs)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier := service.NewWebhookNotifier(cfg.TerminationURL, cfg.TerminationToken, &logger)
	svc := service.NewService(service.Config{
		Store:          store.NewStore(),
		Notifier:       notifier,
		BaseContext:    ctx,
		StatusInterval: cfg.StatusInterval,
		Logger:         &logger,
	})
	monitor := liveness.NewMonitor(cfg.LivenessInterval, &logger)
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:       &logger,
		PartyService: svc,
		ListenAddr:   cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:       &logger,
		PartyService: svc,
		Monitor:      monitor,
		ListenAddr:   cfg.WSListenAddr,
	})

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)
	go monitor.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
