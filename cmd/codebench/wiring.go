package main

import (
	"context"
	"fmt"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/internal/appconfig"
	"pkt.systems/codebench/internal/inference"
	"pkt.systems/codebench/internal/piston"
	"pkt.systems/codebench/internal/tracex"
	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

// remoteDeps holds the configured remote clients.
type remoteDeps struct {
	piston    *piston.Client
	inference *inference.Client
	generator core.Generator
	breaker   *inference.BreakerGenerator
	shutdown  func(context.Context) error
}

func (d remoteDeps) serviceDeps(logger pslog.Logger) core.ServiceDeps {
	return core.ServiceDeps{
		Executor:  d.piston,
		Generator: d.generator,
		Logger:    logger,
	}
}

func (d remoteDeps) close(ctx context.Context) {
	if d.shutdown == nil {
		return
	}
	if err := d.shutdown(ctx); err != nil {
		pslog.Ctx(ctx).Warn("tracing shutdown failed", "err", err)
	}
}

// buildRemoteDeps installs tracing and constructs the execution and
// generation clients from cfg.
func buildRemoteDeps(ctx context.Context, cfg appconfig.Config) (remoteDeps, error) {
	logger := pslog.Ctx(ctx)
	shutdown, err := tracex.Setup(ctx, cfg.TracingSettings())
	if err != nil {
		return remoteDeps{}, fmt.Errorf("tracing setup: %w", err)
	}
	deps := remoteDeps{
		piston:    piston.New(cfg.PistonConfig()),
		inference: inference.New(cfg.InferenceClientConfig()),
		shutdown:  shutdown,
	}
	deps.generator = deps.inference
	if cfg.Inference.Breaker.Enabled {
		deps.breaker = inference.NewBreakerGenerator(deps.inference, cfg.BreakerSettings(), logger)
		deps.generator = deps.breaker
	}
	if !deps.inference.HasToken() {
		logger.Warn("inference token not set; requests are unauthenticated", "token_env", cfg.Inference.TokenEnv)
	}
	logger.Debug(
		"remote clients ready",
		"execution", deps.piston.Endpoint(),
		"code_model", deps.inference.ModelURL(schema.PurposeCode),
		"chat_model", deps.inference.ModelURL(schema.PurposeChat),
		"breaker", deps.breaker != nil,
		"tracing", cfg.Tracing.Enabled,
	)
	return deps, nil
}
