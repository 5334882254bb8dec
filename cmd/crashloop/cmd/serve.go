package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/psantana5/crashloop/pkg/api"
	"github.com/psantana5/crashloop/pkg/auth"
	"github.com/psantana5/crashloop/pkg/ledger"
	"github.com/psantana5/crashloop/pkg/logging"
	"github.com/psantana5/crashloop/pkg/logstream"
	"github.com/psantana5/crashloop/pkg/metrics"
	"github.com/psantana5/crashloop/pkg/ratelimit"
	"github.com/psantana5/crashloop/pkg/shutdown"
	tlsutil "github.com/psantana5/crashloop/pkg/tls"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront backend",
	Long: `Serves the storefront API: purchases are retried against the active target
until they succeed, the crash flag and ledger mode can be flipped, and harness
logs are streamed to browsers over Server-Sent Events.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "listen port (default 3000)")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	cfg := rt.cfg

	m := metrics.New(prometheus.NewRegistry())
	hub := logstream.NewHub(0)
	rt.logger.AddSink(hub.Sink(logging.INFO))

	retrier, err := rt.retrier(m)
	if err != nil {
		rt.Close(ctx)
		return err
	}

	handler := api.NewHandler(api.Deps{
		Store:     rt.store,
		Toggler:   rt.toggler(m),
		Retrier:   retrier,
		Bootstrap: ledger.NewBootstrapper(rt.store, rt.logger, cfg.KV.CrashTable),
		Hub:       hub,
		Metrics:   m,
		Logger:    rt.logger,
		Targets:   api.Targets{Flowstate: cfg.Invoke.FlowstateTarget, Regular: cfg.Invoke.RegularTarget},
	})

	limiter := ratelimit.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go limiter.RunCleanup(cleanupCtx, time.Minute, 10*time.Minute)

	var keys *auth.KeyStore
	if cfg.Server.APIKey != "" {
		keys = auth.NewKeyStore(bcrypt.DefaultCost)
		if err := keys.Add("default", cfg.Server.APIKey); err != nil {
			stopCleanup()
			rt.Close(ctx)
			return fmt.Errorf("failed to register API key: %w", err)
		}
	}

	router := api.NewRouter(handler, api.RouterOptions{
		Tracer:   rt.tracer,
		Limiter:  limiter,
		Keys:     keys,
		Recorder: m,
		Logger:   rt.logger,
	})

	// No WriteTimeout: /logs/stream holds its response open.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if cfg.Server.TLS.Enabled() {
		tlsCfg, err := tlsutil.ServerConfig(cfg.Server.TLS)
		if err != nil {
			stopCleanup()
			rt.Close(ctx)
			return err
		}
		server.TLSConfig = tlsCfg
	}

	mgr := shutdown.New(cfg.Server.ShutdownTimeout, rt.logger)
	mgr.Register("store", shutdown.CloseResource(rt.store))
	mgr.Register("tracer", rt.tracer.Shutdown)
	mgr.Register("rate limiter", func(context.Context) error {
		stopCleanup()
		return nil
	})
	mgr.Register("in-flight purchases", shutdown.WaitFor(func() bool { return handler.InFlight() == 0 }, 100*time.Millisecond))
	mgr.Register("HTTP server", shutdown.StopHTTPServer(server))
	mgr.Register("log streams", func(context.Context) error {
		hub.Close()
		return nil
	})

	serveErr := make(chan error, 1)
	go func() {
		rt.logger.Info("Starting server", map[string]interface{}{
			"port":      cfg.Server.Port,
			"tls":       cfg.Server.TLS.Enabled(),
			"flowstate": cfg.Invoke.FlowstateTarget,
			"regular":   cfg.Invoke.RegularTarget,
		})
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	failed := make(chan error, 1)
	go func() {
		if err, ok := <-serveErr; ok {
			rt.logger.Error("Server failed", map[string]interface{}{"error": err.Error()})
			failed <- err
			cancel()
		}
	}()

	errs := mgr.WaitWithContext(waitCtx)
	defer rt.logger.Close()
	select {
	case err := <-failed:
		errs = append([]error{err}, errs...)
	default:
	}
	return errors.Join(errs...)
}
