package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quenishay-arch/traceloom2/internal/ingest"
	"github.com/quenishay-arch/traceloom2/internal/insight"
	"github.com/quenishay-arch/traceloom2/internal/journal"
	"github.com/quenishay-arch/traceloom2/internal/live"
	"github.com/quenishay-arch/traceloom2/internal/manifest"
	"github.com/quenishay-arch/traceloom2/internal/metrics"
	"github.com/quenishay-arch/traceloom2/internal/restore"
	"github.com/quenishay-arch/traceloom2/internal/snapshot"
	"github.com/quenishay-arch/traceloom2/internal/store"
	"github.com/quenishay-arch/traceloom2/internal/tracker"
)

// Config holds CLI flags for the tracked service.
type Config struct {
	HTTPAddr         string
	StoreBackend     string // memory|pebble
	PebbleDir        string
	SnapshotDir      string
	SnapshotInterval int
	JournalDir       string
	JournalSink      string // file|kafka|both
	ManifestSink     string // file|kafka|both
	ManifestSource   string // file|kafka
	KafkaBootstrap   string
	TopicJournal     string
	TopicManifest    string
	TopicEvents      string
	GroupID          string
	InputSource      string // none|file|kafka
	EventsFile       string
	LiveCapacity     int
	FeedCapacity     int
	RestoreOnStart   bool
	Seed             bool
}

func main() {
	cfg := readFlags()
	if err := run(cfg); err != nil {
		log.Fatalf("tracked failed: %v", err)
	}
}

func readFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "http listen address")
	flag.StringVar(&cfg.StoreBackend, "store-backend", "pebble", "store backend: memory|pebble")
	flag.StringVar(&cfg.PebbleDir, "pebble-dir", "./data/tracked", "pebble data directory")
	flag.StringVar(&cfg.SnapshotDir, "snapshot-dir", "./snapshots", "snapshot directory")
	flag.IntVar(&cfg.SnapshotInterval, "snapshot-interval", 60, "snapshot interval seconds, 0 disables")
	flag.StringVar(&cfg.JournalDir, "journal-dir", "./journal", "journal directory")
	flag.StringVar(&cfg.JournalSink, "journal-sink", "file", "journal sink: file|kafka|both")
	flag.StringVar(&cfg.ManifestSink, "manifest-sink", "file", "manifest sink: file|kafka|both")
	flag.StringVar(&cfg.ManifestSource, "manifest-source", "file", "manifest source for restore: file|kafka")
	flag.StringVar(&cfg.KafkaBootstrap, "kafka-bootstrap", "", "kafka bootstrap servers, e.g. localhost:9092")
	flag.StringVar(&cfg.TopicJournal, "topic-journal", "tracked.journal", "kafka topic for the mutation journal")
	flag.StringVar(&cfg.TopicManifest, "topic-manifest", "tracked.manifest", "kafka topic for manifest (compacted)")
	flag.StringVar(&cfg.TopicEvents, "topic-events", "tracked.events", "kafka topic for canonical sensor events")
	flag.StringVar(&cfg.GroupID, "group-id", "tracked", "consumer group id for the events topic")
	flag.StringVar(&cfg.InputSource, "input-source", "none", "sensor event source: none|file|kafka")
	flag.StringVar(&cfg.EventsFile, "events-file", "./events.jsonl", "events file for -input-source=file")
	flag.IntVar(&cfg.LiveCapacity, "live-capacity", live.DefaultCapacity, "per-subject live buffer size")
	flag.IntVar(&cfg.FeedCapacity, "feed-capacity", live.DefaultFeedCapacity, "global activity feed size")
	flag.BoolVar(&cfg.RestoreOnStart, "restore", true, "restore from snapshot and journal on start")
	flag.BoolVar(&cfg.Seed, "seed", false, "seed sample purchase orders and alerts")
	flag.Parse()
	return cfg
}

// countingJournal tracks how many entries have been appended so the manifest
// can record the replay offset.
type countingJournal struct {
	inner journal.Writer
	n     atomic.Int64
}

func (c *countingJournal) Append(e journal.Entry) error {
	if c.inner == nil {
		return nil
	}
	if err := c.inner.Append(e); err != nil {
		return err
	}
	c.n.Add(1)
	return nil
}

func run(cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting tracked",
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("input_source", cfg.InputSource),
		zap.Int("snapshot_interval", cfg.SnapshotInterval))

	// Durable store
	var st store.Store
	if cfg.StoreBackend == "pebble" {
		ps, err := store.NewPebbleStore(cfg.PebbleDir)
		if err != nil {
			return fmt.Errorf("init pebble: %w", err)
		}
		st = ps
	} else {
		st = store.NewInMemoryStore()
	}
	defer st.Close()

	// Snapshotter and manifest
	snap := snapshot.NewFilesystemSnapshotter(cfg.SnapshotDir)
	maniFS := manifest.NewFilesystemManifest(cfg.SnapshotDir)
	var mani manifest.Publisher = maniFS
	var maniReader manifest.Reader = maniFS
	if (cfg.ManifestSink == "kafka" || cfg.ManifestSink == "both") && cfg.KafkaBootstrap != "" {
		maniK := manifest.NewKafkaManifest(cfg.KafkaBootstrap, cfg.TopicManifest, "tracked-manifest-latest")
		if cfg.ManifestSink == "kafka" {
			mani = maniK
		} else {
			mani = manifest.MultiPublisher(maniFS, maniK)
		}
	}
	if cfg.ManifestSource == "kafka" && cfg.KafkaBootstrap != "" {
		maniReader = restore.NewKafkaManifestReader([]string{cfg.KafkaBootstrap}, cfg.TopicManifest, "tracked-manifest-latest")
	}

	// Mutation journal
	journalPath := filepath.Join(cfg.JournalDir, "mutations.jsonl")
	var jw journal.Writer
	if cfg.JournalSink == "file" || cfg.JournalSink == "both" || cfg.JournalSink == "" {
		fw, err := journal.NewFileWriter(cfg.JournalDir, "mutations.jsonl")
		if err != nil {
			return fmt.Errorf("init journal file: %w", err)
		}
		jw = fw
	}
	if (cfg.JournalSink == "kafka" || cfg.JournalSink == "both") && cfg.KafkaBootstrap != "" {
		kw := journal.NewKafkaWriter(cfg.KafkaBootstrap, cfg.TopicJournal)
		if jw == nil {
			jw = kw
		} else {
			jw = journal.NewMultiWriter(jw, kw)
		}
	}

	mreg := metrics.NewRegistry()

	// Restore state before accepting traffic
	cj := &countingJournal{inner: jw}
	if cfg.RestoreOnStart {
		restorer := restore.NewRestorer(st, snap, maniReader, journalPath, logger)
		res, err := restorer.RestoreAndReplay()
		if err != nil {
			logger.Warn("restore failed, continuing with current state", zap.Error(err))
		} else {
			mreg.RestoreApplied.Add(float64(res.Applied))
			mreg.RestoreSkipped.Add(float64(res.Skipped))
			// Replayed entries are already on disk; keep the offset past them.
			cj.n.Store(countJournalLines(journalPath))
		}
	}

	if cfg.Seed {
		seedSampleData(st, logger)
	}

	reducer := live.NewReducer(cfg.LiveCapacity, "")
	feed := live.NewFeed(cfg.FeedCapacity)
	tr := tracker.New(st, cj, reducer, feed, mreg, insight.NewTemplate(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live events are gated until the historical load finishes, then
	// replayed in timestamp order. The reducer dedup makes the overlap safe.
	gate := ingest.NewGate(func(d ingest.Delivery) { tr.ApplyEvent(d.Event) })
	if cfg.InputSource != "none" {
		src, err := openSource(cfg)
		if err != nil {
			return err
		}
		go consumeEvents(ctx, src, gate, mreg, logger)
	}
	if n, err := tr.LoadHistoricalEvents(); err != nil {
		logger.Warn("historical event load failed", zap.Error(err))
	} else {
		logger.Info("historical events loaded", zap.Int("count", n))
	}
	gate.Open()

	// Periodic snapshot + manifest publication
	if cfg.SnapshotInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(cfg.SnapshotInterval) * time.Second)
			defer ticker.Stop()
			var lastSnap time.Time
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					id := time.Now().UTC().Format(time.RFC3339)
					info, err := snap.WriteSnapshot(id, st)
					if err != nil {
						logger.Error("snapshot failed", zap.Error(err))
						continue
					}
					if err := mani.PublishLatest(id, cj.n.Load(), manifest.Contents{POs: info.POs, Alerts: info.Alerts}); err != nil {
						logger.Error("manifest publish failed", zap.Error(err))
						continue
					}
					lastSnap = time.Now()
					mreg.LastSnapshotAgeSec.Set(0)
					logger.Info("snapshot published",
						zap.String("snapshot_id", id),
						zap.Int("pos", info.POs),
						zap.Int("alerts", info.Alerts))
				}
				if !lastSnap.IsZero() {
					mreg.LastSnapshotAgeSec.Set(time.Since(lastSnap).Seconds())
				}
			}
		}()
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: newServer(tr, mreg, logger).routes()}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

func openSource(cfg Config) (ingest.Source, error) {
	switch cfg.InputSource {
	case "file":
		return ingest.NewFileSource(cfg.EventsFile)
	case "kafka":
		if cfg.KafkaBootstrap == "" {
			return nil, fmt.Errorf("-input-source=kafka requires -kafka-bootstrap")
		}
		return ingest.NewKafkaSource([]string{cfg.KafkaBootstrap}, cfg.TopicEvents, cfg.GroupID), nil
	default:
		return nil, fmt.Errorf("unknown input source %q", cfg.InputSource)
	}
}

func consumeEvents(ctx context.Context, src ingest.Source, gate *ingest.Gate, mreg *metrics.Registry, logger *zap.Logger) {
	defer src.Close()
	for {
		d, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrDrop):
				mreg.EventsDropped.Inc()
				continue
			case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
				return
			default:
				logger.Warn("event source error", zap.Error(err))
				return
			}
		}
		gate.Deliver(d)
	}
}

func countJournalLines(path string) int64 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var n int64
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
