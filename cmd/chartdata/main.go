// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/explorercharts/chartdata/charts"
	"github.com/explorercharts/chartdata/cmd/chartdata/internal/api"
	m "github.com/explorercharts/chartdata/cmd/chartdata/internal/middleware"
	"github.com/explorercharts/chartdata/cmd/chartdata/internal/pubsub"
	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"

	apitypes "github.com/explorercharts/chartdata/api/types"
)

func main() {
	// Create a context that is cancelled when a shutdown request is received
	// via requestShutdown.
	ctx := withShutdownCancel(context.Background())
	// Listen for both interrupt signals and shutdown requests.
	go shutdownListener()

	if err := _main(ctx); err != nil {
		if logRotator != nil {
			log.Error(err)
		}
		os.Exit(1)
	}
	os.Exit(0)
}

// _main does all the work. Deferred functions do not run after os.Exit(), so
// main wraps this function, which returns a code.
func _main(ctx context.Context) error {
	// Parse the configuration file, and setup logger.
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Failed to load chartdata config: %s\n", err.Error())
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	if cfg.CPUProfile != "" {
		var f *os.File
		f, err = os.Create(cfg.CPUProfile)
		if err != nil {
			return err
		}
		if err = pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	if cfg.UseGops {
		// Start gops diagnostic agent, with shutdown cleanup.
		if err = agent.Listen(agent.Options{}); err != nil {
			return err
		}
		defer agent.Close()
	}

	// Display app version.
	log.Infof("%s version %v (Go version %s)", AppName, Version(), runtime.Version())

	// WaitGroup for the monitor goroutines
	var wg sync.WaitGroup

	// Chart catalogue, with the optional overrides.
	registry, err := chartRegistry(cfg)
	if err != nil {
		return err
	}

	// Plot data.
	if err = os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("unable to create data directory: %w", err)
	}
	store := dataset.NewStore(cfg.DataDir, cfg.definitions()...)

	status := apitypes.NewStatus(len(store.IDs()), api.APIVersion, Version())
	store.OnUpdate(func(*dataset.Snapshot) {
		status.SetLoaded(len(store.Loaded()), store.Revision())
	})

	chartData, err := charts.NewChartData(registry, store, cfg.Locale, cfg.ChartCache)
	if err != nil {
		return fmt.Errorf("failed to create the chart cache: %w", err)
	}
	chartData.Observe = m.ObserveChart

	// The websocket hub redraws the charts of its clients when a dataset is
	// replaced.
	hub := pubsub.NewChartHub(registry, store, cfg.Locale, func(n int) {
		status.SetClients(n)
		m.WebsocketClients.Set(float64(n))
	})
	defer hub.StopWebsocketHub()
	store.OnUpdate(hub.DatasetUpdated)

	// Load the plot files, then fill in any missing dataset from the dump.
	loadErr := store.LoadAll()
	if cfg.CacheFile != "" {
		if n := store.LoadDump(cfg.CacheFile); n > 0 {
			loadErr = nil
		}
		defer store.Dump(cfg.CacheFile)
	}
	if loadErr != nil {
		// The server still starts, and serves the data once plot files are
		// written to the data directory.
		log.Warnf("%v", loadErr)
	}

	if !cfg.NoWatch {
		if err = store.Watch(ctx, &wg); err != nil {
			return fmt.Errorf("unable to watch %s: %w", cfg.DataDir, err)
		}
		log.Infof("Watching %s for plot file changes.", cfg.DataDir)
	}

	// Create the API.
	app := api.NewContext(&api.AppContextConfig{
		DataSource: store,
		Charts:     chartData,
		Status:     status,
		AppVer:     Version(),
	})
	if app == nil {
		return errors.New("failed to create the API context")
	}
	apiMux := api.NewAPIRouter(app, cfg.IndentJSON, cfg.UseRealIP, cfg.CompressAPI)

	// Start the web server.
	webMux := api.StackedMux(cfg.UseRealIP)
	if cfg.ServerHeader != "off" {
		webMux.Use(m.Server(cfg.ServerHeader))
	}

	limited := m.Next
	if cfg.RateLimit > 0 {
		limited = m.Tollbooth(m.NewLimiter(cfg.RateLimit))
	}

	webMux.Mount("/api", limited(apiMux.Mux))
	webMux.Get("/ws", limited(http.HandlerFunc(hub.WebSocketHandler)).ServeHTTP)
	webMux.Handle("/metrics", promhttp.Handler())
	webMux.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/charts", http.StatusFound)
	})
	logRoutes(webMux)

	if err = listenAndServeProto(ctx, &wg, cfg, webMux); err != nil {
		return err
	}

	log.Infof("Serving %d charts from %d of %d datasets.", len(registry.Specs()),
		len(store.Loaded()), len(store.IDs()))

	// Wait for the web server and the file watcher to stop.
	wg.Wait()

	return nil
}

// chartRegistry builds the chart catalogue with the configured target and
// chart file overrides.
func chartRegistry(cfg *config) (*charts.Registry, error) {
	specs := charts.DefaultSpecs()
	if cfg.Target > 0 {
		for _, spec := range specs {
			if spec.Target == 0 || spec.Target == sampler.DefaultTarget {
				spec.Target = cfg.Target
			}
		}
	}
	registry, err := charts.NewRegistry(specs...)
	if err != nil {
		return nil, fmt.Errorf("invalid chart catalogue: %w", err)
	}
	if cfg.ChartsFile != "" {
		n, err := charts.ApplySpecFile(registry, cfg.ChartsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to apply chart definitions from %s: %w", cfg.ChartsFile, err)
		}
		log.Infof("Applied %d chart definitions from %s.", n, cfg.ChartsFile)
	}
	return registry, nil
}

// logRoutes lists the server routes at debug level.
func logRoutes(mux *chi.Mux) {
	_ = chi.Walk(mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		log.Debugf("%-7s %s", method, route)
		return nil
	})
}

func listenAndServeProto(ctx context.Context, wg *sync.WaitGroup, cfg *config, mux http.Handler) error {
	// Try to bind web server
	server := http.Server{
		Addr:         cfg.APIListen,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,  // slow requests should not hold connections opened
		WriteTimeout: 60 * time.Second, // hung responses must die
	}

	// Add the graceful shutdown to the waitgroup.
	wg.Add(1)
	go func() {
		// Start graceful shutdown of web server on shutdown signal.
		<-ctx.Done()

		// We received an interrupt signal, shut down.
		log.Infof("Gracefully shutting down web server...")
		ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShut); err != nil {
			// Error from closing listeners.
			log.Infof("HTTP server Shutdown: %v", err)
		}

		// wg.Wait can proceed.
		wg.Done()
	}()

	log.Infof("Now serving the chart API on %s://%v/", cfg.APIProto, cfg.APIListen)
	// Start the server.
	serverErr := make(chan error, 1)
	go func() {
		var err error
		if cfg.APIProto == "https" {
			err = server.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		// If the server dies for any reason other than ErrServerClosed (from
		// graceful server.Shutdown), log the error and request chartdata be
		// shutdown.
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Failed to start server: %v", err)
			serverErr <- err
			requestShutdown()
		}
	}()

	// If the server successfully binds to a listening port, ListenAndServe*
	// will block until the server is shutdown. Wait here briefly so the startup
	// operations in main can have a chance to bail out.
	select {
	case err := <-serverErr:
		return err
	case <-time.After(250 * time.Millisecond):
		return nil
	}
}
