package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway"
	"github.com/saidarshan/devicegateway/internal/api"
	"github.com/saidarshan/devicegateway/internal/auth"
	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/device"
	"github.com/saidarshan/devicegateway/internal/playback"
	"github.com/saidarshan/devicegateway/internal/provider"
	"github.com/saidarshan/devicegateway/internal/pubsub"
	"github.com/saidarshan/devicegateway/internal/store"
	"github.com/saidarshan/devicegateway/internal/telegram"
)

func main() {
	path := flag.String("config", "./config.json", "path to config")
	showRevision := flag.Bool("revision", false, "show version of the application")

	flag.Parse()

	if *showRevision {
		fmt.Println(devicegateway.Revision)
		return
	}

	logger := zerolog.New(os.Stdout)
	cfg, err := config.Parse(*path)
	if err != nil {
		logger.
			Fatal().
			Err(err).
			Str("revision", devicegateway.Revision).
			Str("branch", devicegateway.Branch).
			Str("env", devicegateway.Env).
			Msg("parsing config file")
	}

	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	logger.
		Debug().
		Str("revision", devicegateway.Revision).
		Str("branch", devicegateway.Branch).
		Msg("starting application")

	bootCtx, bootCancel := context.WithTimeout(logger.WithContext(context.Background()), time.Second*15)
	defer bootCancel()

	var st store.Store
	if cfg.Postgres.DSN == "" && cfg.Debug {
		logger.Warn().Msg("no postgres dsn, state is in-memory only")
		st = store.NewMemory()
	} else {
		pg, errStore := store.NewPostgres(bootCtx, cfg.Postgres.DSN, logger)
		if errStore != nil {
			logger.Fatal().Err(errStore).Msg("can't connect to postgres")
		}
		defer pg.Close()
		st = pg
	}

	notifierClient, err := raven.New(cfg.SentryDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't create sentry client")
	}
	notifierClient.SetRelease(devicegateway.Revision)
	notifierClient.SetEnvironment(devicegateway.Env)

	registry := device.NewRegistry()
	bus := pubsub.New()
	fanout := device.NewFanout(registry, bus)
	control := playback.NewController(st)
	selector := provider.NewSelector(cfg.Providers)
	authn := auth.New(st, cfg.Auth.Timeout.Std())

	tgclient := telegram.New()
	api, _ := api.NewHTTP(cfg, st, authn, control, registry, fanout, selector, logger, notifierClient)
	api.Serve()

	go func() {
		if err := sendNotificationMessage(bootCtx, tgclient, cfg.NotifyTelegram.API, cfg.NotifyTelegram.ChatID); err != nil {
			logger.Error().Err(err).Msg("can't notify telegram")
		}
	}()

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGTERM, syscall.SIGQUIT)
	<-s

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()

	errNotify := tgclient.SendMessageViaHTTP(ctx, cfg.NotifyTelegram.API, cfg.NotifyTelegram.ChatID, "shutting down")
	if errNotify != nil {
		logger.Error().Err(errNotify).Msg("error notifying via tg")
	}

	if errShut := api.Shutdown(ctx); errShut != nil {
		logger.Error().Err(errShut).Msg("error shutting down server")
	}
}

func sendNotificationMessage(ctx context.Context, tgclient telegram.Client, api, chatID string) error {
	var b = devicegateway.Branch
	var e = devicegateway.Env
	var r = devicegateway.Revision
	message := fmt.Sprintf("devicegw branch=%s env=%s revision=%s", b, e, r)
	return tgclient.SendMessageViaHTTP(ctx, api, chatID, message)
}
