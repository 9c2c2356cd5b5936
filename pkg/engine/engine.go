// Package engine implements the top-level orchestration of spec.md §4.7
// and §5: spawning up to MaxReaderThreads workers, the process-global
// flow_id counter and shutdown flag, and the main polling/join loop that
// prints cumulative counters on exit.
//
// Grounded on original_source/nDPId.c's start_reader_threads/
// stop_reader_threads (signal mask block around thread creation,
// per-worker break + join, cumulative counters on exit) and
// els0r-goProbe/cmd/goProbe/cmd/root.go's signal.NotifyContext usage for
// SIGINT/SIGTERM-driven shutdown.
package engine

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/flowlens/ndpid-go/pkg/capture"
	"github.com/flowlens/ndpid-go/pkg/dpi"
	"github.com/flowlens/ndpid-go/pkg/logging"
	"github.com/flowlens/ndpid-go/pkg/worker"
)

// MaxReaderThreads is spec.md §6's MAX_READER_THREADS.
const MaxReaderThreads = 4

// PollInterval is how often the main loop checks worker exhaustion,
// per spec.md §4.7 ("polls all workers once per second").
const PollInterval = time.Second

// Config is the resolved runtime configuration, built from the CLI
// flags of spec.md §6.
type Config struct {
	Target     string
	SinkPath   string
	NumWorkers int
}

// Engine owns the shared process-global state of spec.md §5: the
// atomically-incremented flow_id counter and the shutdown flag. All
// other state (flow tables, sockets, capture handles) is confined to
// individual workers.
type Engine struct {
	cfg    Config
	engine dpi.Engine
	log    *logging.L

	flowID   atomic.Uint64
	shutdown atomic.Bool

	workers []*worker.Worker
}

// New builds an Engine from cfg, using dpiEngine as the DPI black box
// (spec.md §1). It does not start any workers.
func New(cfg Config, dpiEngine dpi.Engine, log *logging.L) *Engine {
	if cfg.NumWorkers <= 0 || cfg.NumWorkers > MaxReaderThreads {
		cfg.NumWorkers = MaxReaderThreads
	}
	return &Engine{cfg: cfg, engine: dpiEngine, log: log}
}

func (e *Engine) nextFlowID() uint64 {
	return e.flowID.Add(1) - 1
}

// Run initializes the DPI engine, spawns the workers, and blocks until
// shutdown (by signal or source exhaustion), returning a non-nil error
// only on setup failure (spec.md §6's exit code 1 path).
func (e *Engine) Run(ctx context.Context) error {
	if err := e.engine.Initialize(); err != nil {
		return err
	}

	e.workers = make([]*worker.Worker, e.cfg.NumWorkers)
	for i := range e.workers {
		source := capture.NewPcapSource(e.cfg.Target)
		e.workers[i] = worker.New(i, e.cfg.NumWorkers, e.engine, source, e.cfg.SinkPath, e.nextFlowID, &e.shutdown, e.log)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	var wg sync.WaitGroup
	runErrs := make([]error, len(e.workers))
	for i, w := range e.workers {
		wg.Add(1)
		go func(i int, w *worker.Worker) {
			defer wg.Done()
			runErrs[i] = w.Run()
		}(i, w)
	}

	e.pollUntilDone(ctx)

	wg.Wait()
	e.logSummary()

	for _, err := range runErrs {
		if err != nil {
			return err
		}
	}
	return nil
}

// pollUntilDone implements the main thread's once-per-second poll of
// spec.md §4.7: it returns once the context is cancelled (SIGINT/
// SIGTERM) or every worker has flagged error_or_eof, breaking every
// worker's capture loop before returning.
func (e *Engine) pollUntilDone(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown.Store(true)
			e.breakAll()
			return
		case <-ticker.C:
			if e.allExhausted() {
				e.shutdown.Store(true)
				e.breakAll()
				return
			}
		}
	}
}

func (e *Engine) allExhausted() bool {
	for _, w := range e.workers {
		if !w.ErrorOrEOF() {
			return false
		}
	}
	return true
}

func (e *Engine) breakAll() {
	for _, w := range e.workers {
		w.BreakLoop()
	}
}

func (e *Engine) logSummary() {
	var total worker.Stats
	for _, w := range e.workers {
		s := w.Stats()
		total.PacketsCaptured += s.PacketsCaptured
		total.PacketsProcessed += s.PacketsProcessed
		total.TotalL4Bytes += s.TotalL4Bytes
		total.FlowsCaptured += s.FlowsCaptured
		total.FlowsIdled += s.FlowsIdled
		total.FlowsDetected += s.FlowsDetected
		total.CapacityWarnings += s.CapacityWarnings
	}

	e.log.Infof(
		"shutdown: packets_captured=%d packets_processed=%d l4_bytes=%d flows_captured=%d flows_idled=%d flows_detected=%d capacity_warnings=%d",
		total.PacketsCaptured, total.PacketsProcessed, total.TotalL4Bytes,
		total.FlowsCaptured, total.FlowsIdled, total.FlowsDetected, total.CapacityWarnings,
	)
}
