package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/dmoutbox"
	"dnamessenger.dev/core/internal/group"
	"dnamessenger.dev/core/internal/pubqueue"
	"dnamessenger.dev/core/internal/valuestore"
)

const defaultCleanupPeriod = 10 * time.Minute

// Runtime bundles the chunked storage plane and every component built on
// top of it (C3-C10) behind one value with a single owned lifetime,
// replacing the teacher's separate chainState/blockStore/syncEngine/
// peerManager handles with this module's equivalent set
// (cmd/rubin-node/main.go wires its handles the same way: open each
// dependency, thread it into the next).
type Runtime struct {
	Config    Config
	Transport dht.Transport
	Suite     cryptosuite.Suite
	Chunks    *chunkstore.Store
	Publish   *pubqueue.Queue
	Outbox    *dmoutbox.Outbox
	Groups    *group.Store

	// ValueStore is non-nil only when Config.Bootstrap is set (spec.md
	// §4.5: persistence is a bootstrap-node-only concern).
	ValueStore *valuestore.Store

	logger *slog.Logger
	cancel context.CancelFunc
}

// New constructs a Runtime around an already-connected transport. The
// caller owns transport's lifetime; Open below is the convenience
// constructor that also opens the on-disk value store for bootstrap mode.
func New(cfg Config, transport dht.Transport, suite cryptosuite.Suite) (*Runtime, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	chunks := chunkstore.NewStore(transport, suite)
	rt := &Runtime{
		Config:    cfg,
		Transport: transport,
		Suite:     suite,
		Chunks:    chunks,
		Publish:   pubqueue.NewQueue(chunks, cfg.PublishDepth),
		Outbox:    dmoutbox.NewOutbox(chunks, transport),
		Groups:    group.NewStore(chunks),
		logger:    newLogger(cfg.LogLevel),
	}
	return rt, nil
}

// Open is New plus, when cfg.Bootstrap is set, opening the on-disk
// valuestore.Store rooted at cfg.DataDir (spec.md §4.5, §6.3).
func Open(cfg Config, transport dht.Transport, suite cryptosuite.Suite) (*Runtime, error) {
	rt, err := New(cfg, transport, suite)
	if err != nil {
		return nil, err
	}
	if cfg.Bootstrap {
		vs, err := valuestore.Open(ValueStorePath(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("engine: open value store: %w", err)
		}
		vs.SetLogger(rt.logger)
		rt.ValueStore = vs
	}
	return rt, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Run starts the bootstrap-mode background workers (restart republish,
// periodic expiry cleanup) and blocks until ctx is cancelled. Non-
// bootstrap nodes have nothing to run here; Run returns immediately once
// ctx is done in that case too.
func (rt *Runtime) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	defer cancel()

	if rt.ValueStore != nil {
		period := defaultCleanupPeriod
		if rt.Config.CleanupPeriod != "" {
			if d, err := time.ParseDuration(rt.Config.CleanupPeriod); err == nil {
				period = d
			}
		}
		go func() {
			if _, err := rt.ValueStore.RepublishAll(runCtx, rt.Transport); err != nil {
				rt.logger.Warn("restart republish failed", "err", err)
			}
		}()
		go rt.ValueStore.RunCleanupLoop(runCtx, period)
	}

	<-runCtx.Done()
	return nil
}

// Close releases the Runtime's owned resources. Transport is not owned
// by Runtime and is left open for the caller to close.
func (rt *Runtime) Close() error {
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.Publish.Close()
	if rt.ValueStore != nil {
		return rt.ValueStore.Close()
	}
	return nil
}
