package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vellum/engine"
	"vellum/lib/schema"
	"vellum/lib/tracer"
	"vellum/server"
	"vellum/service/common"

	"github.com/alexflint/go-arg"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	ListenPort uint   `arg:"--listen-port,env:LISTEN_PORT" default:"2425"`
	SchemaFile string `arg:"--schema,env:SCHEMA_FILE,required"`
	StoreArgs
	SlowQuery       time.Duration `arg:"--slow-query,env:SLOW_QUERY" default:"1s"`
	TraceSlowerThan time.Duration `arg:"--trace-slower-than,env:TRACE_SLOWER_THAN" default:"0s"`
	Timeout         time.Duration `arg:"--timeout,env:REQUEST_TIMEOUT" default:"30s"`
	MaxConcurrency  int           `arg:"--max-concurrency,env:MAX_CONCURRENCY" default:"1000"`
	Dev             bool          `arg:"--dev,env:DEV" default:"false"`
	// Observability.
	common.PrometheusArgs
	common.HealthCheckArgs
	common.PprofArgs
	tracer.TracerArgs
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
}

func main() {
	var args flags
	arg.MustParse(&args)

	logger, err := newLogger(args.Dev)
	if err != nil {
		panic(fmt.Errorf("failed to construct logger: %v", err))
	}
	_ = zap.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, args); err != nil {
		logger.Fatal("queryd stopped", zap.Error(err))
	}
}

func run(ctx context.Context, args flags) error {
	logger := zap.L()
	catalog, err := schema.LoadFile(args.SchemaFile)
	if err != nil {
		return err
	}
	logger.Info("loaded schema", zap.Strings("tables", catalog.Tables()))

	if args.OtlpEndpoint != "" {
		shutdown, err := tracer.InitProvider(args.OtlpEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("failed to flush spans", zap.Error(err))
			}
		}()
	}

	store, err := openStore(args.StoreArgs)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()
	logger.Info("opened store", zap.String("store", args.Store), zap.Uint64("applied_position", uint64(store.AppliedPosition())))

	qe := engine.New(catalog, store,
		engine.WithLogger(logger),
		engine.WithSlowQueryThreshold(args.SlowQuery),
	)
	router := server.New(qe, logger).Router(server.Options{
		Timeout:               args.Timeout,
		MaxConcurrentRequests: args.MaxConcurrency,
		TraceSlowerThan:       args.TraceSlowerThan,
	})
	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%d", args.ListenPort), Handler: router},
		common.NewPromMetricsServer(args.MetricsPort),
		common.NewHealthCheckServer(args.HealthPort, map[string]healthcheck.Check{
			"store": common.StoreReadinessCheck(store, time.Second),
		}),
		common.NewPprofServer(args.PprofPort),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error { return common.Serve(gctx, srv) })
	}
	return g.Wait()
}
