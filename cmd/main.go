package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gorilla/mux"
	v1handlers "github.com/merchhub/tokensync/internal/api/v1/handlers"
	"github.com/merchhub/tokensync/internal/config"
	"github.com/merchhub/tokensync/internal/logger"
	"github.com/merchhub/tokensync/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile string
	var listenAddr string

	flagSet := pflag.NewFlagSet("tokensync", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "path to an env file with configuration overrides")
	flagSet.StringVar(&listenAddr, "listen", "", "listen address override")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	logger.Setup(cfg.LogLevel, cfg.LogPretty)
	displayAppname("tokensync")

	svc, err := services.InitializeServices(cfg)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: cfg.ListenAddr, Handler: setupRouter(svc)}

	svc.StartBackground()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	waitForStopSignal()
	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	svc.Shutdown()
	return nil
}

func setupRouter(svc *services.Services) *mux.Router {
	router := mux.NewRouter()
	v1handlers.RegisterV1Routes(router, svc)
	return router
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
