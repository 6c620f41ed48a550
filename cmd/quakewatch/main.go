// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seismonet/quakewatch/internal/alerts"
	"github.com/seismonet/quakewatch/internal/auth"
	"github.com/seismonet/quakewatch/internal/catalogclient"
	"github.com/seismonet/quakewatch/internal/classifier"
	"github.com/seismonet/quakewatch/internal/config"
	"github.com/seismonet/quakewatch/internal/deadletter"
	"github.com/seismonet/quakewatch/internal/httpapi"
	"github.com/seismonet/quakewatch/internal/ingest"
	"github.com/seismonet/quakewatch/internal/locator"
	"github.com/seismonet/quakewatch/internal/magnitude"
	"github.com/seismonet/quakewatch/internal/orchestrator"
	"github.com/seismonet/quakewatch/internal/store"
	"github.com/seismonet/quakewatch/internal/waveformclient"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/runtimeEnv"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Exit codes per spec §6.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitStoreCorruption  = 2
	exitModelLoadFailure = 3
	exitBindFailure      = 4
)

func main() {
	var flagConfigFile, flagChannelCode, flagLocationCode, flagLogLevel string
	var flagPollIntervalMS, flagCatalogLookbackS, flagCatalogPollS int
	var flagDeadLetterPath, flagDeadLetterDir string
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default options with those in `config.json`")
	flag.StringVar(&flagChannelCode, "channel-code", "HHZ", "Channel code appended to every configured station to build its detector feed")
	flag.StringVar(&flagLocationCode, "location-code", "00", "Location code appended to every configured station to build its detector feed")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Minimum log level: debug, info, notice, warn, err, crit")
	flag.IntVar(&flagPollIntervalMS, "waveform-poll-ms", 1000, "Waveform Client poll interval per channel, in milliseconds")
	flag.IntVar(&flagCatalogPollS, "catalog-poll-s", 300, "Catalog Client sync poll interval, in seconds")
	flag.IntVar(&flagCatalogLookbackS, "catalog-lookback-s", 3600, "Trailing lookback window for each catalog sync poll, in seconds")
	flag.StringVar(&flagDeadLetterDir, "dead-letter-dir", "./var", "Directory holding the dead-letter JSONL file")
	flag.Parse()
	flagDeadLetterPath = flagDeadLetterDir + "/deadletter.jsonl"

	log.SetLogLevel(flagLogLevel)

	if err := config.Init(flagConfigFile); err != nil {
		log.Errorf("config: %s", err)
		os.Exit(exitConfigError)
	}
	cfg := config.Keys

	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Errorf("store: opening %s: %s", cfg.Store.Dir, err)
		os.Exit(exitStoreCorruption)
	}
	defer st.Close()

	scheduler, err := store.NewScheduler(st)
	if err != nil {
		log.Errorf("store: building scheduler: %s", err)
		os.Exit(exitStoreCorruption)
	}
	if err := scheduler.Start(cfg.Store.Period); err != nil {
		log.Errorf("store: starting scheduler: %s", err)
		os.Exit(exitStoreCorruption)
	}
	defer scheduler.Shutdown()

	dl, err := deadletter.Open(flagDeadLetterPath)
	if err != nil {
		log.Errorf("deadletter: opening %s: %s", flagDeadLetterPath, err)
		os.Exit(exitConfigError)
	}
	defer dl.Close()

	classifierRegistry, err := classifier.NewRegistry(cfg.Models.Classifier.Path)
	if err != nil {
		log.Errorf("classifier: loading artifact %s: %s", cfg.Models.Classifier.Path, err)
		os.Exit(exitModelLoadFailure)
	}

	magnitudeRegistry, err := magnitude.NewRegistry(cfg.Models.Magnitude.Path)
	if err != nil {
		log.Errorf("magnitude: loading artifact %s: %s", cfg.Models.Magnitude.Path, err)
		os.Exit(exitModelLoadFailure)
	}

	stationRegistry := locator.NewRegistry(cfg.Locator.Stations)
	hypoLocator := locator.New(cfg.Locator, stationRegistry)

	catalogClient := catalogclient.New(cfg.CatalogBaseURL, cfg.Catalog, 5*time.Minute, 8<<20)
	waveformClient := waveformclient.New(cfg.WaveformBaseURL, cfg.Waveform)

	startSeq, err := st.MaxSeq(context.Background())
	if err != nil {
		log.Errorf("store: reading max sequence: %s", err)
		os.Exit(exitStoreCorruption)
	}

	pipeline := orchestrator.New(cfg, startSeq+1, orchestrator.Deps{
		Waveform:   waveformClient,
		Classifier: classifierRegistry,
		Magnitude:  magnitudeRegistry,
		Locator:    hypoLocator,
		Stations:   stationRegistry,
		Store:      st,
		DeadLetter: dl,
	})

	var subscribers []*alerts.Subscriber
	for _, sub := range cfg.Alerts.Subscribers {
		subscribers = append(subscribers, alerts.NewSubscriber(sub.ID, sub.WebhookURL, cfg.Alerts.PerSubscriberRPS))
	}
	dispatcher := alerts.New(cfg.Alerts, st, subscribers)

	channels := channelsForStations(cfg.Locator.Stations, flagLocationCode, flagChannelCode)
	streamIngestor := ingest.NewStreamIngestor(waveformClient, pipeline, dl, cfg.Detector,
		time.Duration(flagPollIntervalMS)*time.Millisecond, channels)
	catalogSync := ingest.NewCatalogSync(catalogClient, dl,
		time.Duration(flagCatalogPollS)*time.Second, time.Duration(flagCatalogLookbackS)*time.Second)

	authValidator := auth.New(cfg.JWT)
	api := &httpapi.API{
		Store:        st,
		Auth:         authValidator,
		AuthDisabled: cfg.DisableAuthentication,
		Ready: httpapi.Ready{
			Store:    func() bool { return true },
			Catalog:  func() bool { return true },
			Waveform: func() bool { return true },
			Model:    func() bool { return classifierRegistry.Artifact() != nil && magnitudeRegistry.Artifact() != nil },
		},
		Classifier:          classifierRegistry,
		Magnitude:           magnitudeRegistry,
		ClassifierModelPath: cfg.Models.Classifier.Path,
		MagnitudeModelPath:  cfg.Models.Magnitude.Path,
		PurgeCaches:         catalogClient.Purge,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("orchestrator: pipeline stopped: %s", err)
		}
	}()
	go streamIngestor.Run(ctx)
	go catalogSync.Run(ctx)
	go func() {
		if err := dispatcher.Run(ctx, 0); err != nil && ctx.Err() == nil {
			log.Errorf("alerts: dispatcher stopped: %s", err)
		}
	}()

	runtimeEnv.SystemdNotifiy(true, "READY=1")
	serverStart(cfg, api, exitBindFailure)

	<-ctx.Done()
	log.Info("quakewatch: shutting down")
	serverShutdown()
	pipeline.Close()
	os.Exit(exitOK)
}

// channelsForStations builds one vertical-component ChannelID per
// configured station; the detection path (spec §2: "External waveform
// feed ⇒ C2 ⇒ C3 ⇒ C4 ⇒ C6") runs one detector per channel this way.
func channelsForStations(stations []schema.StationEntry, locationCode, channelCode string) []schema.ChannelID {
	channels := make([]schema.ChannelID, 0, len(stations))
	for _, st := range stations {
		channels = append(channels, schema.ChannelID{
			Network:  st.Network,
			Station:  st.Station,
			Location: locationCode,
			Channel:  channelCode,
		})
	}
	return channels
}
