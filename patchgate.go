package patchgate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/patchgate/patchgate/audit"
	"github.com/patchgate/patchgate/config"
	"github.com/patchgate/patchgate/server"
	"github.com/patchgate/patchgate/service/dao"
	fsstore "github.com/patchgate/patchgate/service/dao/store/fs"
	"github.com/patchgate/patchgate/service/gate"
	"github.com/patchgate/patchgate/service/patch"
	"github.com/patchgate/patchgate/tracing"
)

// Runtime is a fully wired daemon: policy engine, applicator, gate and HTTP
// server, built from one Config.
type Runtime struct {
	config *config.Config
	logger *zap.Logger
	gate   *gate.Service
	server *server.Server
}

// Option customizes the runtime wiring.
type Option func(*Runtime) error

// WithLogger replaces the logger built from the config's logger section.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) error {
		r.logger = logger
		return nil
	}
}

// New wires a runtime from configuration.
func New(cfg *config.Config, options ...Option) (*Runtime, error) {
	r := &Runtime{config: cfg}
	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}
	if r.logger == nil {
		logger, err := cfg.NewLogger()
		if err != nil {
			return nil, err
		}
		r.logger = logger
	}

	if cfg.Tracing.Enabled {
		if err := tracing.Init("patchgate", "1.0", cfg.Tracing.Output); err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
	}

	engine, err := cfg.PolicyEngine()
	if err != nil {
		return nil, err
	}
	applicator, err := patch.New(cfg.Workspace.Root)
	if err != nil {
		return nil, err
	}

	gateOptions := []gate.Option{gate.WithLogger(r.logger)}
	if cfg.Store.Backend == "fs" {
		var records dao.Service[string, gate.Record]
		records, err = fsstore.New[gate.Record](cfg.Store.Path,
			func(rec *gate.Record) string { return rec.ID })
		if err != nil {
			return nil, err
		}
		gateOptions = append(gateOptions, gate.WithRecordStore(records))
	}
	if cfg.Audit.Path != "" {
		gateOptions = append(gateOptions, gate.WithAuditor(audit.NewWriter(cfg.Audit.Path)))
	}

	r.gate = gate.New(engine, applicator, gateOptions...)
	r.server = server.New(r.gate, r.logger, server.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	r.logger.Info("runtime assembled",
		zap.String("mode", string(engine.Snapshot().Mode)),
		zap.String("workspace", applicator.Root()),
		zap.String("store", cfg.Store.Backend))
	return r, nil
}

// Gate exposes the gate service for embedding.
func (r *Runtime) Gate() *gate.Service {
	return r.gate
}

// Logger exposes the runtime logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.logger
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (r *Runtime) Start() error {
	return r.server.ListenAndServe()
}

// Shutdown drains the HTTP server and flushes the logger.
func (r *Runtime) Shutdown(ctx context.Context) error {
	err := r.server.Shutdown(ctx)
	_ = r.logger.Sync()
	return err
}
