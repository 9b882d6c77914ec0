// Command launchlab runs the launch monitor measurement pipeline: a corner
// stream (live UDP or pcap replay) feeds tracking, ball lock, the gated
// rolling-shutter solver, impact detection, and the refusal-first lifecycle
// gates, with results persisted to sqlite.
//
// Usage:
//
//	go run ./cmd/launchlab [flags]
//
// Flags:
//
//	-listen      UDP listen address for the live corner stream
//	-pcap        Replay a recorded pcap instead of listening (requires -tags pcap)
//	-realtime    Pace pcap replay by recorded timestamps
//	-udp-port    Corner-stream UDP port inside the pcap
//	-db          Path to the sqlite database
//	-migrations  Path to the schema migrations directory
//	-config      Path to a tuning JSON file (defaults baked in)
//	-telemetry   Path for the telemetry CSV (empty disables)
//	-debug       Enable the diagnostic log stream
//	-trace       Enable the per-frame trace log stream
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/launchlab-data/launchlab/internal/capture"
	"github.com/launchlab-data/launchlab/internal/config"
	"github.com/launchlab-data/launchlab/internal/db"
	"github.com/launchlab-data/launchlab/internal/pipeline"
	"github.com/launchlab-data/launchlab/internal/storage/sqlite"
	"github.com/launchlab-data/launchlab/internal/telemetry"
	"github.com/launchlab-data/launchlab/internal/version"
)

func main() {
	listenAddr := flag.String("listen", ":8844", "UDP listen address for the corner stream")
	pcapFile := flag.String("pcap", "", "Replay a recorded pcap instead of listening")
	realtime := flag.Bool("realtime", true, "Pace pcap replay by recorded timestamps")
	udpPort := flag.Int("udp-port", 8844, "Corner-stream UDP port inside the pcap")
	dbPath := flag.String("db", "launchlab.db", "Path to the sqlite database")
	migrationsDir := flag.String("migrations", "migrations", "Path to the schema migrations directory")
	configPath := flag.String("config", "", "Path to a tuning JSON file")
	telemetryPath := flag.String("telemetry", "", "Path for the telemetry CSV (empty disables)")
	debug := flag.Bool("debug", false, "Enable the diagnostic log stream")
	trace := flag.Bool("trace", false, "Enable the per-frame trace log stream")
	flag.Parse()

	log.Printf("launchlab %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	tuning := config.MustLoadDefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := sqlite.NewStore(database)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	log.Printf("Session %s", store.SessionID())

	var diagW, traceW io.Writer
	if *debug {
		diagW = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diagW, traceW)

	sinks := telemetry.MultiSink{telemetry.LogSink{}}
	if *telemetryPath != "" {
		f, err := os.Create(*telemetryPath)
		if err != nil {
			log.Fatalf("Failed to create telemetry file: %v", err)
		}
		defer f.Close()
		csvSink, err := telemetry.NewCSVWriter(f)
		if err != nil {
			log.Fatalf("Failed to initialise telemetry CSV: %v", err)
		}
		defer csvSink.Flush()
		sinks = append(sinks, csvSink)
	}

	cfg := pipeline.FromTuning(tuning)
	cfg.Records = store
	cfg.Events = sinks
	// The dot-pattern matcher and closed-form PnP bootstrap come from the
	// camera-unit collaborator; without them the solver stage stays idle
	// and shots can only be observed, never finalized.
	p := pipeline.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Printf("Shutting down...")
		cancel()
	}()

	if *pcapFile != "" {
		reader, err := capture.OpenPcap(*pcapFile, *udpPort)
		if err != nil {
			log.Fatalf("Failed to open pcap: %v", err)
		}
		err = capture.Replay(ctx, reader, capture.ReplayConfig{Realtime: *realtime}, p.FrameCallback())
		if err != nil && err != context.Canceled {
			log.Fatalf("Replay failed: %v", err)
		}
	} else {
		srcCfg := capture.DefaultUDPSourceConfig()
		srcCfg.Address = *listenAddr
		source := capture.NewUDPSource(srcCfg, p.FrameCallback())
		if err := source.Run(ctx); err != nil && err != context.Canceled {
			log.Fatalf("Listener failed: %v", err)
		}
	}

	log.Printf("Frames dropped while busy: %d", p.DroppedFrames())
}
