package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wasender/pkg/config"
	"github.com/wasender/pkg/database"
	"github.com/wasender/pkg/domains/agent"
	"github.com/wasender/pkg/domains/autoreply"
	"github.com/wasender/pkg/domains/catalog"
	"github.com/wasender/pkg/domains/entitlement"
	"github.com/wasender/pkg/domains/sender"
	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/logger"
	"github.com/wasender/pkg/publisher"
	"github.com/wasender/pkg/server"
	"github.com/wasender/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

func StartApp() {
	utils.LoadEnv()
	config := config.InitConfig()
	log := logger.Init(config.Log)

	database.InitDB(config.Database)
	db := database.DBClient()

	hub := publisher.NewHub()
	store := whatsapp.NewStore()

	wa := whatsapp.NewService(whatsapp.Deps{
		Store:       store,
		Credentials: whatsapp.NewCredentialStore(config.WhatsApp.AuthDir),
		Factory:     whatsapp.NewWhatsmeowFactory(logger.Component(log, "whatsmeow")),
		Repository:  whatsapp.NewRepo(db),
		Publisher:   hub,
		Logger:      logger.Component(log, "whatsapp"),
		Options:     whatsapp.OptionsFromConfig(config.WhatsApp),
	})

	bridge := autoreply.NewService(
		store,
		wa,
		catalog.NewRepo(db),
		agent.NewRasaClient(config.Agent, logger.Component(log, "agent")),
		logger.Component(log, "autoreply"),
	)
	wa.OnMessage(bridge.OnInboundMessage)

	quotas := entitlement.NewService(entitlement.NewRepo(db), logger.Component(log, "entitlement"))
	bulk := sender.NewService(sender.Deps{
		Messenger:  wa,
		Quotas:     quotas,
		Repository: sender.NewRepo(db),
		Publisher:  hub,
		Logger:     logger.Component(log, "sender"),
		Options:    sender.OptionsFromConfig(config.Sender),
	})

	if err := wa.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start session manager")
	}

	if id := config.WhatsApp.DefaultSessionID; id != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), config.WhatsApp.StartupTimeout+config.WhatsApp.QRWait)
			defer cancel()
			if err := wa.Initialize(ctx, id); err != nil {
				log.Warn().Err(err).Str("session", id).Msg("default session did not start")
			}
		}()
	}

	srv := server.NewHttpServer(config, server.Deps{
		WhatsApp:  wa,
		AutoReply: bridge,
		Sender:    bulk,
		Hub:       hub,
		Logger:    logger.Component(log, "http"),
	})

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
	bulk.Close(ctx)
	wa.Close(ctx)
	log.Info().Msg("shutdown complete")
}
