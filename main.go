// Command spectrum-report runs the NR-U channel-access service: it
// ingests baseband I/Q samples, runs listen-before-talk sensing, and
// serves engine state and sensing history over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/spectrum.report/api"
	"github.com/banshee-data/spectrum.report/internal/config"
	"github.com/banshee-data/spectrum.report/internal/db"
	"github.com/banshee-data/spectrum.report/internal/iq"
	"github.com/banshee-data/spectrum.report/internal/lbt"
	"github.com/banshee-data/spectrum.report/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file (defaults apply when empty)")
	listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
	udpListen  = flag.String("udp-listen", "", "Sample listener UDP address (overrides config)")
	dbPath     = flag.String("db", "", "Sqlite database path (overrides config)")
	synthetic  = flag.Bool("synthetic", false, "Feed the engine from a synthetic source instead of UDP")
	noDB       = flag.Bool("no-db", false, "Disable sensing event persistence")
)

func main() {
	flag.Parse()

	log.Printf("spectrum-report %s (%s)", version.Version, version.GitSHA)

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	httpAddr := cfg.GetHTTPListenAddr()
	if *listen != "" {
		httpAddr = *listen
	}
	sampleAddr := cfg.GetSampleListenAddr()
	if *udpListen != "" {
		sampleAddr = *udpListen
	}
	databasePath := cfg.GetDatabasePath()
	if *dbPath != "" {
		databasePath = *dbPath
	}

	accessCfg := cfg.ToAccessConfig()

	// Event persistence
	var database *db.DB
	var writer *db.EventWriter
	runID := ""
	if !*noDB {
		var err error
		database, err = db.NewDB(databasePath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		runID, err = database.CreateRun(accessCfg.Mode.String(), "")
		if err != nil {
			log.Fatalf("failed to create run: %v", err)
		}
		writer = db.NewEventWriter(database, runID)
		log.Printf("recording sensing events to %s (run %s)", databasePath, runID)
	}

	var sinks []lbt.EventSink
	if writer != nil {
		sinks = append(sinks, writer)
	}
	if p := cfg.GetSensingLogPath(); p != "" {
		csv := lbt.NewCSVLog(p)
		defer csv.Close()
		sinks = append(sinks, csv)
	}

	engine := lbt.New(lbt.Options{
		BufferCapacity:     cfg.GetBufferCapacity(),
		StabilityThreshold: cfg.GetStabilityThreshold(),
		Sinks:              sinks,
	})
	if err := engine.UpdateConfig(accessCfg); err != nil {
		log.Fatalf("invalid channel-access config: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// sample ingestion: UDP front end or synthetic source
	wg.Add(1)
	if *synthetic {
		go func() {
			defer wg.Done()
			log.Print("feeding engine from synthetic source")
			iq.NewSyntheticSource(engine).Run(ctx)
			log.Print("synthetic source terminated")
		}()
	} else {
		listener := iq.NewUDPListener(iq.UDPListenerConfig{
			Address: sampleAddr,
			RcvBuf:  4 << 20,
			Stats:   &iq.PacketStats{},
			Sink:    engine,
		})
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("sample listener failed: %v", err)
			}
			log.Print("sample listener terminated")
		}()
	}

	// noise-floor calibration, once the buffer has had a moment to fill
	if cfg.GetCalibrateOnStart() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			if err := engine.Calibrate(cfg.GetCalibrationReads()); err != nil {
				log.Printf("startup calibration failed: %v", err)
			}
		}()
	}

	// event writer flush loop
	if writer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer.Run(ctx)
			if n := writer.Dropped(); n > 0 {
				log.Printf("event writer dropped %d events", n)
			}
			log.Print("event writer terminated")
		}()
	}

	// FBE receive-path heartbeat
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.Heartbeat()
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := api.NewServer(engine, database, runID).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    httpAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP server listening on %s", httpAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if database != nil && runID != "" {
		if err := database.EndRun(runID); err != nil {
			log.Printf("failed to end run: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
