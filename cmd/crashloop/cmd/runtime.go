package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/psantana5/crashloop/pkg/config"
	"github.com/psantana5/crashloop/pkg/crash"
	"github.com/psantana5/crashloop/pkg/invoke"
	"github.com/psantana5/crashloop/pkg/kv"
	"github.com/psantana5/crashloop/pkg/logging"
	tlsutil "github.com/psantana5/crashloop/pkg/tls"
	"github.com/psantana5/crashloop/pkg/tracing"
)

// runtime holds what every command needs once configuration is loaded.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	aws    aws.Config
	store  kv.Store
	tracer *tracing.Provider
}

// newRuntime serves one-shot commands, which need a store that outlives
// the process.
func newRuntime(ctx context.Context) (*runtime, error) {
	return openRuntime(ctx, false)
}

func openRuntime(ctx context.Context, allowMemory bool) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !allowMemory && !cfg.KV.Persistent() {
		return nil, fmt.Errorf("%w: use sqlite, postgres, dynamodb or redis", config.ErrEphemeralStore)
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	awsCfg, err := cfg.LoadAWS(ctx)
	if err != nil {
		return nil, err
	}

	opts := cfg.KVOptions()
	opts.AWS = awsCfg
	store, err := kv.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.KV.Backend, err)
	}

	tracer, err := tracing.InitTracer(ctx, cfg.Tracing, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, aws: awsCfg, store: store, tracer: tracer}, nil
}

func (rt *runtime) Close(ctx context.Context) {
	if err := rt.tracer.Shutdown(ctx); err != nil {
		rt.logger.Warn("Tracer shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("Closing store failed", map[string]interface{}{"error": err.Error()})
	}
	rt.logger.Close()
}

// invoker routes URL targets over HTTP and everything else to Lambda.
func (rt *runtime) invoker() (invoke.Invoker, error) {
	httpInv := invoke.NewHTTPInvoker(rt.cfg.Invoke.Timeout)
	httpInv.SetAPIKey(rt.cfg.Invoke.APIKey)
	if rt.cfg.Invoke.TLS.CAFile != "" || rt.cfg.Invoke.TLS.Enabled() {
		tlsCfg, err := tlsutil.ClientConfig(rt.cfg.Invoke.TLS)
		if err != nil {
			return nil, err
		}
		httpInv.SetTLSConfig(tlsCfg)
	}

	return &invoke.Dispatcher{
		HTTP:   httpInv,
		Lambda: invoke.NewLambdaInvoker(rt.aws, rt.cfg.AWS.EndpointURL),
	}, nil
}

func (rt *runtime) retrier(rec invoke.Recorder) (*invoke.Retrier, error) {
	inv, err := rt.invoker()
	if err != nil {
		return nil, err
	}
	opts := []invoke.Option{
		invoke.WithDelay(rt.cfg.Invoke.RetryDelay),
		invoke.WithMaxAttempts(rt.cfg.Invoke.MaxAttempts),
		invoke.WithLogger(rt.logger),
		invoke.WithTracer(rt.tracer),
	}
	if rec != nil {
		opts = append(opts, invoke.WithRecorder(rec))
	}
	return invoke.NewRetrier(inv, opts...), nil
}

func (rt *runtime) toggler(rec crash.Recorder) *crash.Toggler {
	opts := []crash.Option{
		crash.WithTable(rt.cfg.KV.CrashTable, crash.DefaultKey),
		crash.WithLogger(rt.logger),
		crash.WithTracer(rt.tracer),
	}
	if rt.cfg.KV.ConditionalToggle {
		opts = append(opts, crash.WithConditionalWrite())
	}
	if rec != nil {
		opts = append(opts, crash.WithRecorder(rec))
	}
	return crash.NewToggler(rt.store, opts...)
}
