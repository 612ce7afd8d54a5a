package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/execsnoop/internal/bpf"
	"github.com/mrzor/execsnoop/internal/bpfloader"
	"github.com/mrzor/execsnoop/internal/config"
	"github.com/mrzor/execsnoop/internal/correlator"
	"github.com/mrzor/execsnoop/internal/emitter"
	"github.com/mrzor/execsnoop/internal/eventprocessor"
	"github.com/mrzor/execsnoop/internal/eventstream"
	"github.com/mrzor/execsnoop/internal/log"
	"github.com/mrzor/execsnoop/internal/otel"
	"github.com/mrzor/execsnoop/internal/output"
	"github.com/mrzor/execsnoop/internal/pending"
	"github.com/mrzor/execsnoop/internal/timesync"
)

// setupOTEL initializes the OTEL provider and returns a tracer and cleanup function.
func setupOTEL(ctx context.Context) (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	tp, err := otel.InitProvider(ctx, otelCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.Error("shutting down OTEL provider", "error", err)
		}
	}

	return tp.Tracer("execsnoop"), cleanup, nil
}

// setupBPF loads the notification forwarder, attaches its tracepoints and
// opens the notification ring. The cleanup function detaches everything.
func setupBPF(cfg *config.Config) (*ringbuf.Reader, func(), error) {
	loader, err := bpfloader.New(cfg.BPFObject, bpf.LoadOptions{RingSize: cfg.NotificationBuffer})
	if err != nil {
		return nil, nil, err
	}

	if err := loader.Attach(); err != nil {
		if closeErr := loader.Close(); closeErr != nil {
			log.Error("closing loader after attach failure", "error", closeErr)
		}
		return nil, nil, err
	}

	rd, err := loader.OpenRingBuffer()
	if err != nil {
		if closeErr := loader.Close(); closeErr != nil {
			log.Error("closing loader after ring buffer open failure", "error", closeErr)
		}
		return nil, nil, err
	}

	cleanup := func() {
		if err := loader.Close(); err != nil {
			log.Error("closing loader", "error", err)
		}
	}

	return rd, cleanup, nil
}

// setupOutputs builds the consumers of exported records.
func setupOutputs(cfg *config.Config, clock *timesync.Converter, tracer trace.Tracer) (*output.Sink, error) {
	var handlers []output.ExecHandler

	if cfg.Output.JSON() {
		handlers = append(handlers, output.NewJSONFormatter(os.Stdout, clock))
	}
	if cfg.Output.OTEL() {
		f, err := output.NewOTELFormatter(tracer, clock, output.OTELOptions{
			CustomAttributes: cfg.CustomAttributes,
			TraceID:          cfg.TraceID,
			ParentID:         cfg.ParentID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OTEL formatter: %w", err)
		}
		handlers = append(handlers, f)
	}

	return output.NewSink(handlers...), nil
}

// pipeline is the chain from kernel notifications to outputs:
//
//	notification ring → processor → correlator → emitter → export ring → sink
type pipeline struct {
	notifications *eventstream.Stream
	export        *eventstream.Stream
	ring          *emitter.Ring
	emitter       *emitter.Emitter
	correlator    *correlator.Correlator
}

func newPipeline(cfg *config.Config, rd eventstream.Reader, sink *output.Sink) *pipeline {
	ring := emitter.NewRing(cfg.ExportBuffer)
	em := emitter.New(ring)
	c := correlator.New(pending.New(cfg.PendingCapacity), em, correlator.Config{
		MaxArgs:       cfg.MaxArgs,
		FailurePolicy: cfg.FailurePolicy(),
	})

	return &pipeline{
		notifications: eventstream.New("notifications", rd, eventprocessor.NewProcessor(c)),
		export:        eventstream.New("export", ring, sink),
		ring:          ring,
		emitter:       em,
		correlator:    c,
	}
}

func (p *pipeline) start(ctx context.Context) {
	p.export.Start(ctx)
	p.notifications.Start(ctx)
}

// drain waits for the notification stream to end, which happens once its
// reader is closed, then flushes the export ring.
func (p *pipeline) drain() {
	<-p.notifications.Done()
	if err := p.ring.Close(); err != nil {
		log.Error("closing export ring", "error", err)
	}
	<-p.export.Done()
}

func (p *pipeline) logStats() {
	cs := p.correlator.Stats()
	es := p.emitter.Stats()
	log.Info("exec statistics",
		"entered", cs.Entered,
		"succeeded", cs.Succeeded,
		"failed", cs.Failed,
		"emitted", cs.Emitted,
		"not_emitted", cs.NotEmitted,
		"failed_dropped", cs.FailedDropped,
		"dropped_duplicate", cs.DroppedDuplicate,
		"dropped_full", cs.DroppedFull,
		"reaped", cs.Reaped,
		"pending", p.correlator.Pending(),
		"export_lost", es.Lost,
		"export_oversize", es.Oversize,
		"export_failed", es.Failed,
		"export_bytes", es.BytesSent,
	)
}

func run(cfg *config.Config) error {
	log.Info("starting execsnoop", "version", version, "commit", commit, "built", date)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock, err := timesync.NewConverter()
	if err != nil {
		return fmt.Errorf("failed to create time converter: %w", err)
	}

	var tracer trace.Tracer
	if cfg.Output.OTEL() {
		t, cleanupOTEL, err := setupOTEL(sigCtx)
		if err != nil {
			return err
		}
		defer cleanupOTEL()
		tracer = t
	}

	sink, err := setupOutputs(cfg, clock, tracer)
	if err != nil {
		return err
	}

	rd, cleanupBPF, err := setupBPF(cfg)
	if err != nil {
		return err
	}
	defer cleanupBPF()

	// Streams run on their own context so that a signal stops intake at the
	// ring reader and everything already queued still reaches the outputs.
	p := newPipeline(cfg, rd, sink)
	p.start(context.Background())

	if cfg.PendingTTL > 0 {
		go p.correlator.RunReaper(sigCtx, cfg.ReapInterval(), cfg.PendingTTL)
		log.Debug("pending reaper enabled", "ttl", cfg.PendingTTL, "interval", cfg.ReapInterval())
	}

	log.Info("tracing exec calls", "output", cfg.Output, "max_args", cfg.MaxArgs, "failure_policy", cfg.FailurePolicy())

	<-sigCtx.Done()
	log.Info("received signal, shutting down")

	if err := rd.Close(); err != nil {
		log.Error("closing notification ring", "error", err)
	}
	p.drain()
	p.logStats()

	return nil
}
