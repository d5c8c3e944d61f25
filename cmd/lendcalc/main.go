// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/lendcalc/internal/api"
	"github.com/blinklabs-io/lendcalc/internal/config"
	"github.com/blinklabs-io/lendcalc/internal/logging"
	"github.com/blinklabs-io/lendcalc/internal/market"
	"github.com/blinklabs-io/lendcalc/internal/metrics"
	"github.com/blinklabs-io/lendcalc/internal/pricefeed"
	"github.com/blinklabs-io/lendcalc/internal/snapshot"
	"github.com/blinklabs-io/lendcalc/internal/storage"
	"github.com/blinklabs-io/lendcalc/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	programName = "lendcalc"
)

var cmdlineFlags struct {
	configFile   string
	snapshotFile string
	version      bool
	serve        bool
	reload       time.Duration
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	flag.StringVar(&cmdlineFlags.snapshotFile, "snapshot", "", "path to market snapshot file")
	flag.BoolVar(&cmdlineFlags.version, "version", false, "show version")
	flag.BoolVar(&cmdlineFlags.serve, "serve", false, "serve evaluated views over HTTP")
	flag.DurationVar(&cmdlineFlags.reload, "reload", 30*time.Second, "snapshot reload interval when serving")
	flag.Parse()

	if cmdlineFlags.version {
		fmt.Printf("%s %s\n", programName, version.GetVersionString())
		os.Exit(0)
	}

	if cmdlineFlags.snapshotFile == "" {
		fmt.Println("No snapshot file specified")
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}

	// Configure logging
	logging.Configure()
	logger := logging.GetLogger()

	logger.Info(
		fmt.Sprintf("%s %s started", programName, version.GetVersionString()),
		"network", cfg.Network,
		"profiles", cfg.Profiles,
	)

	// Match GOMAXPROCS to the container CPU quota
	undo, err := maxprocs.Set(
		maxprocs.Logger(func(msg string, args ...any) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
	)
	defer undo()
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}

	evalMetrics, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Start debug listener (pprof and metrics)
	if cfg.Debug.ListenPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		logger.Info(
			"starting debug listener",
			"address", cfg.Debug.ListenAddress,
			"port", cfg.Debug.ListenPort,
		)
		go func() {
			err := http.ListenAndServe(
				fmt.Sprintf("%s:%d", cfg.Debug.ListenAddress, cfg.Debug.ListenPort),
				nil,
			)
			if err != nil {
				logger.Error("failed to start debug listener", "error", err)
				os.Exit(1)
			}
		}()
	}

	// Oracle observations are persisted when a storage directory is
	// configured and kept in memory otherwise
	var db *storage.Storage
	if cfg.Storage.Directory != "" {
		db = storage.GetStorage()
		if err := db.Load(); err != nil {
			logger.Error("failed to load storage", "error", err)
			os.Exit(1)
		}
	} else {
		db, err = storage.Open("")
		if err != nil {
			logger.Error("failed to open in-memory storage", "error", err)
			os.Exit(1)
		}
	}
	defer db.Close()

	assets := config.GetAssets()
	logger.Debug(
		"loaded assets",
		"count", len(assets),
		"availableProfiles", config.GetAvailableProfiles(),
	)
	for _, m := range cfg.Markets {
		if _, ok := config.GetAsset(m.BaseAssetId); !ok {
			logger.Warn(
				"market base asset is not configured, its positions cannot be valued",
				"market", m.AppId,
				"asset", m.BaseAssetId,
			)
		}
	}
	staticPrices, err := pricefeed.NewStaticReaderFromConfig(assets)
	if err != nil {
		logger.Error("failed to load configured prices", "error", err)
		os.Exit(1)
	}
	store := pricefeed.NewStore(
		db,
		pricefeed.WithMaxAge(
			time.Duration(cfg.Policy.MaxPriceAgeSeconds)*time.Second,
		),
	)
	svc := market.NewService(
		pricefeed.ChainReader{store, staticPrices},
		assets,
		market.PolicyFromConfig(cfg.Policy),
	)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	view, err := evaluate(ctx, logger, cfg, store, svc, evalMetrics)
	if err != nil {
		logger.Error("failed to evaluate snapshot", "error", err)
		os.Exit(1)
	}

	if !cmdlineFlags.serve {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			logger.Error("failed to write view", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := api.New(api.WithPrices(store))
	srv.Update(view)
	if err := evalMetrics.TrackWebSocketClients(srv.WebSocketClientCount); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Api.ListenAddress, cfg.Api.ListenPort)
		if err := srv.StartServer(addr); err != nil {
			logger.Error("API server failed", "error", err)
			os.Exit(1)
		}
	}()

	ticker := time.NewTicker(cmdlineFlags.reload)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			view, err := evaluate(ctx, logger, cfg, store, svc, evalMetrics)
			if err != nil {
				// Keep serving the last good view
				logger.Error("failed to reload snapshot", "error", err)
				continue
			}
			srv.Update(view)
			logger.Debug(
				"reloaded snapshot",
				"markets", len(view.Markets),
				"listings", len(view.Listings),
				"errors", len(view.Errors),
			)
		}
	}
}

// evaluate computes a view and records the outcome in m
func evaluate(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	store *pricefeed.Store,
	svc *market.Service,
	m *metrics.Metrics,
) (*market.View, error) {
	start := time.Now()
	view, err := loadAndEvaluate(ctx, logger, cfg, store, svc)
	if err != nil {
		m.EvaluationFailed()
		return nil, err
	}
	m.ObserveView(view, time.Since(start))
	return view, nil
}

// loadAndEvaluate loads the snapshot file, records its oracle datums and
// computes the view
func loadAndEvaluate(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	store *pricefeed.Store,
	svc *market.Service,
) (*market.View, error) {
	file, err := snapshot.Load(cmdlineFlags.snapshotFile)
	if err != nil {
		return nil, err
	}
	for _, entry := range file.Prices {
		datum, err := entry.Datum()
		if err != nil {
			logger.Warn(
				"skipping undecodable oracle datum",
				"oracle", entry.OracleAppId,
				"error", err,
			)
			continue
		}
		if err := store.Put(entry.OracleAppId, datum); err != nil {
			logger.Warn(
				"skipping oracle datum",
				"oracle", entry.OracleAppId,
				"error", err,
			)
		}
	}
	return svc.Evaluate(ctx, file.Snapshots(cfg.Markets))
}
