// Command server launches the order execution engine: SubmissionAPI,
// the push channel, and the lifecycle pipeline that drives orders from
// pending to confirmed or failed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	apihttp "github.com/coachpo/swapexec/internal/api/http"
	"github.com/coachpo/swapexec/internal/api/stream"
	chainfake "github.com/coachpo/swapexec/internal/infra/chain/fake"
	routerfake "github.com/coachpo/swapexec/internal/infra/router/fake"

	"github.com/coachpo/swapexec/internal/config"
	"github.com/coachpo/swapexec/internal/delivery"
	"github.com/coachpo/swapexec/internal/domain/lifecycle"
	"github.com/coachpo/swapexec/internal/execution"
	"github.com/coachpo/swapexec/internal/infra/database"
	"github.com/coachpo/swapexec/internal/infra/persistence/postgres"
	"github.com/coachpo/swapexec/internal/observability"
	"github.com/coachpo/swapexec/internal/push"
	"github.com/coachpo/swapexec/internal/queue/execqueue"
	"github.com/coachpo/swapexec/internal/queue/statusqueue"
	"github.com/coachpo/swapexec/internal/queue/substrate"
	"github.com/coachpo/swapexec/internal/resources"
	"github.com/coachpo/swapexec/internal/telemetry"
)

const (
	defaultConfigPath = "config/server.yaml"
	loggerPrefix      = "swapexec "

	httpServerShutdownTimeout = 5 * time.Second
	dbPoolShutdownTimeout     = 5 * time.Second
	resourcesShutdownTimeout  = 10 * time.Second
	telemetryShutdownTimeout  = 5 * time.Second

	httpReadHeaderTimeout = 5 * time.Second
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newServerLogger()
	observability.SetLogger(stdLogger{logger})

	configPath := resolveConfigPath(cfgPathFlag)
	runtimeCfg, loadedFromFile, err := config.LoadOrDefault(ctx, configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found at %s, using defaults", configPath)
	}

	telemetryProvider, err := telemetry.NewProvider(ctx, telemetry.DefaultConfig())
	if err != nil {
		logger.Fatalf("initialise telemetry: %v", err)
	}

	pool, err := database.Connect(ctx, runtimeCfg.Store.DSN)
	if err != nil {
		logger.Fatalf("connect to store: %v", err)
	}
	postgres.ObservePoolMetrics(pool, "orders")

	store := postgres.NewOrderStore(pool)

	router := routerfake.New(routerfake.DefaultConfig())
	chain := chainfake.New(chainfake.DefaultConfig())

	registry := push.NewRegistry()

	deliveryFactory := delivery.NewFactory(registry, runtimeCfg.WSWorker.Concurrency, runtimeCfg.WSWorker.RateLimitPerMinute)

	// The execution worker factory needs the Lifecycle as its Runner, and
	// the Lifecycle needs the resource manager (through the status
	// publisher) as its scope provider. The two constructions are
	// mutually dependent, so the manager is built against a forwarding
	// factory whose target is filled in once the lifecycle exists.
	var execFactory executionFactoryRef
	resourceMgr := resources.New(deliveryFactory, execFactory.invoke, runtimeCfg.Resources.IdleTimeout)

	statusPublisher := statusqueue.NewPublisher(resourceMgr, statusqueue.DefaultMaxAttempts, statusqueue.DefaultInitialBackoff)

	lc := lifecycle.New(store, router, chain, statusPublisher, lifecycle.DefaultConfirmationTimeout)

	execFactory.set(execution.NewFactory(lc, runtimeCfg.Queue.MaxConcurrency, runtimeCfg.Queue.RateLimitPerMinute,
		execution.DefaultMaxAttempts, execution.DefaultInitialBackoff))

	execEnqueuer := execqueue.NewEnqueuer(resourceMgr)

	submissionHandler := apihttp.New(store, resourceMgr, execEnqueuer).Handler()
	streamHandler := stream.New(registry, store).Handler()

	httpServer := &http.Server{
		Addr:              runtimeCfg.Server.Addr(),
		Handler:           routeRequests(submissionHandler, streamHandler),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	go func() {
		logger.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Print("shutdown signal received")

	performGracefulShutdown(context.Background(), logger, gracefulShutdownConfig{
		server:    httpServer,
		pool:      pool,
		resources: resourceMgr,
		telemetry: telemetryProvider,
	})
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to server configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newServerLogger() *log.Logger {
	return log.New(os.Stdout, loggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

// stdLogger adapts the process log.Logger to observability.Logger.
type stdLogger struct{ *log.Logger }

func (l stdLogger) Debug(msg string, fields ...observability.Field) {
	l.Printf("DEBUG %s %v", msg, fields)
}
func (l stdLogger) Info(msg string, fields ...observability.Field) {
	l.Printf("INFO %s %v", msg, fields)
}
func (l stdLogger) Error(msg string, fields ...observability.Field) {
	l.Printf("ERROR %s %v", msg, fields)
}

// routeRequests dispatches "/api/orders/{orderId}/stream" to the
// push-channel handler and everything else to SubmissionAPI.
func routeRequests(submission, stream http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/stream") {
			stream.ServeHTTP(w, r)
			return
		}
		submission.ServeHTTP(w, r)
	})
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}

type poolCloser interface {
	Close()
}

// executionFactoryRef breaks the construction cycle between the resource
// manager (which needs an ExecutionWorkerFactory up front) and the
// lifecycle (which needs the resource manager as its scope provider).
// The manager is handed invoke before set is ever called; by the time any
// order reaches Allocate, set has run and every call forwards to the real
// factory.
type executionFactoryRef struct {
	mu sync.Mutex
	fn resources.ExecutionWorkerFactory
}

func (r *executionFactoryRef) set(fn resources.ExecutionWorkerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn = fn
}

func (r *executionFactoryRef) invoke(orderID string, queue *substrate.Queue[string]) resources.Worker {
	r.mu.Lock()
	fn := r.fn
	r.mu.Unlock()
	if fn == nil {
		panic("cmd/server: execution factory invoked before initialisation")
	}
	return fn(orderID, queue)
}

type gracefulShutdownConfig struct {
	server    *http.Server
	pool      poolCloser
	resources *resources.Manager
	telemetry *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	var stepErrs []error
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
			stepErrs = append(stepErrs, fmt.Errorf("%s: %w", name, err))
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping http server", httpServerShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	if cfg.resources != nil {
		shutdownStep("tearing down per-order resources", resourcesShutdownTimeout, func(stepCtx context.Context) error {
			cfg.resources.Shutdown(stepCtx)
			return nil
		})
	}

	if cfg.pool != nil {
		shutdownStep("closing database pool", dbPoolShutdownTimeout, func(_ context.Context) error {
			cfg.pool.Close()
			return nil
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}

	// Individual step failures are already logged above as they happen;
	// AggregateErrors additionally emits one structured summary log line
	// through the observability package and surfaces a single joined
	// error, so a shutdown with multiple failing steps produces one
	// correlated entry instead of only the scattered per-step lines.
	if err := observability.AggregateErrors("graceful_shutdown", stepErrs); err != nil {
		logger.Printf("shutdown: completed with errors: %v", err)
	}
}
