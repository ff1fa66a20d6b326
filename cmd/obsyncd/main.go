package main

import (
	"flag"
	"net/http"
	"syscall"
	"time"

	"github.com/BullionBear/obsync/internal/book"
	"github.com/BullionBear/obsync/internal/buffer"
	"github.com/BullionBear/obsync/internal/config"
	"github.com/BullionBear/obsync/internal/feed"
	"github.com/BullionBear/obsync/internal/ingress"
	"github.com/BullionBear/obsync/internal/render"
	"github.com/BullionBear/obsync/internal/restdepth"
	"github.com/BullionBear/obsync/internal/snapshot"
	"github.com/BullionBear/obsync/internal/syncmachine"
	"github.com/BullionBear/obsync/pkg/logger"
	"github.com/BullionBear/obsync/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	symbolOverride := flag.String("symbol", "", "override the symbol from the config file")
	flag.Parse()

	if *configPath == "" {
		logger.Log.Fatal().Msg("please provide a path to the configuration file")
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("can't read config")
	}
	if *symbolOverride != "" {
		cfg.Symbol = *symbolOverride
	}

	logger.InitLogger(cfg.Development)
	logger.Log.Info().Interface("config", cfg).Msg("starting order-book synchronizer")

	sd := shutdown.NewShutdown(logger.Log)

	restClient := restdepth.New(cfg.RESTBaseURL, &http.Client{Timeout: snapshot.DefaultTimeout})
	store := book.New()
	buf := buffer.New(buffer.DefaultCapacity)
	newFetcher := func() *snapshot.Fetcher {
		return snapshot.NewFetcher(restClient, logger.Log)
	}

	machine := syncmachine.New(cfg.Symbol, cfg.SnapshotDepth, store, buf, newFetcher, logger.Log)
	printer := render.NewPrinter(machine, cfg.Symbol, 5)
	machine.SetUpdateCallback(printer.Print)

	dispatcher := ingress.New(machine, logger.Log)
	var feedOpts []feed.Option
	if cfg.WSBaseURL != "" {
		feedOpts = append(feedOpts, feed.WithBaseURL(cfg.WSBaseURL))
	}
	feedClient := feed.New(cfg.Symbol, dispatcher.Dispatch, logger.Log, feedOpts...)

	machine.Start()
	go machine.Run(sd.Context())
	go func() {
		if err := feedClient.Run(sd.Context()); err != nil {
			logger.Log.Error().Err(err).Msg("feed client exited")
		}
	}()
	sd.HookShutdownCallback("feed", func() { _ = feedClient.Close() }, 5*time.Second)

	sd.WaitForShutdown(syscall.SIGINT, syscall.SIGTERM)
	logger.Log.Info().Msg("order-book synchronizer stopped")
}
