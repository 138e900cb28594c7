package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/cli/config"
	"github.com/AshkanYarmoradi/go-dugout/logging"
	"github.com/AshkanYarmoradi/go-dugout/middleware/metrics"
	"github.com/AshkanYarmoradi/go-dugout/middleware/tracing"
	"github.com/AshkanYarmoradi/go-dugout/notify"
	"github.com/AshkanYarmoradi/go-dugout/notify/kafka"
	"github.com/AshkanYarmoradi/go-dugout/notify/sns"
	"github.com/AshkanYarmoradi/go-dugout/notify/webhook"
	"github.com/AshkanYarmoradi/go-dugout/scorebook"
)

// Runtime is the wired scorebook used by the match and serve commands.
type Runtime struct {
	Config   *config.Config
	Logger   *logging.Zap
	Backend  *Backend
	Service  *scorebook.Service
	Bus      *dugout.CommandBus
	Notifier *notify.Notifier

	// Registry is nil unless metrics are enabled.
	Registry *prometheus.Registry

	closers []func() error
}

// RuntimeOption configures OpenRuntime.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	logOutput io.Writer
	snsClient sns.Client
}

// WithLogOutput sets where logs are written. Default is stderr.
func WithLogOutput(w io.Writer) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logOutput = w
	}
}

// WithSNSClient replaces the SNS client built from the environment.
func WithSNSClient(c sns.Client) RuntimeOption {
	return func(o *runtimeOptions) {
		o.snsClient = c
	}
}

// OpenRuntime opens the configured store and wires logging, metrics,
// tracing, notifications and the command bus around the scorebook.
func OpenRuntime(ctx context.Context, cfg *config.Config, opts ...RuntimeOption) (_ *Runtime, err error) {
	o := runtimeOptions{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: o.logOutput,
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()
	rt.closers = append(rt.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	factory, err := NewAdapterFactory(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := factory.OpenReady(ctx)
	if err != nil {
		return nil, err
	}
	rt.Backend = backend
	rt.closers = append(rt.closers, backend.Close)
	if factory.IsMemoryDriver() {
		logger.Warn("Using the memory driver, matches are lost when the process exits")
	}

	var store adapters.Store = backend.Store
	coordOpts := []dugout.CoordinatorOption{dugout.WithCoordinatorLogger(logger)}
	svcOpts := []scorebook.Option{
		scorebook.WithLogger(logger),
		scorebook.WithCompletedMatchUndo(cfg.Undo.AllowAfterCompletion),
	}
	busMiddleware := []dugout.Middleware{
		dugout.RecoveryMiddleware(),
		dugout.CorrelationIDMiddleware(uuid.NewString),
		dugout.NewLoggingMiddleware(logger).Middleware(),
	}

	if cfg.Metrics.Enabled {
		m := metrics.New(metrics.WithMetricsServiceName("dugout"))
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := m.Register(reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		rt.Registry = reg
		store = m.WrapStore(store)
		coordOpts = append(coordOpts, dugout.WithTransactionMetrics(m))
		svcOpts = append(svcOpts, scorebook.WithHistoryMetrics(m))
		busMiddleware = append(busMiddleware, m.CommandMiddleware())
	}

	if cfg.Tracing.Enabled {
		w, closeOutput, err := traceOutput(cfg.Tracing.Output)
		if err != nil {
			return nil, err
		}
		tp, err := tracing.NewStdoutTracerProvider(w)
		if err != nil {
			_ = closeOutput()
			return nil, err
		}
		rt.closers = append(rt.closers, closeOutput, func() error {
			return tp.Shutdown(context.Background())
		})
		tracer := tracing.NewTracer(tracing.WithTracerProvider(tp))
		store = tracing.NewStoreMiddleware(store, tracer)
		coordOpts = append(coordOpts, dugout.WithOperationWrapper(tracing.TraceOperations(tracer)))
		busMiddleware = append(busMiddleware, tracing.CommandMiddleware(tracer))
	}

	if len(cfg.Notify.Routes) > 0 {
		n, err := buildNotifier(cfg, logger, o.snsClient)
		if err != nil {
			return nil, err
		}
		rt.Notifier = n
		rt.closers = append(rt.closers, n.Close)
		svcOpts = append(svcOpts, scorebook.OnCommitted(n.Hook()))
	}

	busMiddleware = append(busMiddleware,
		dugout.ValidationMiddleware(),
		dugout.IdempotencyMiddleware(dugout.DefaultIdempotencyConfig(backend.Idempotency)),
	)

	events := dugout.New(store, dugout.WithLogger(logger))
	svcOpts = append(svcOpts, scorebook.WithCoordinator(dugout.NewCoordinator(coordOpts...)))
	rt.Service = scorebook.NewService(scorebook.NewStore(store, events), svcOpts...)

	rt.Bus = dugout.NewCommandBus(dugout.WithMiddleware(busMiddleware...))
	scorebook.RegisterHandlers(rt.Bus, rt.Service)
	rt.closers = append(rt.closers, rt.Bus.Close)

	logger.Debug("Runtime ready",
		"driver", backend.Driver,
		"metrics", cfg.Metrics.Enabled,
		"tracing", cfg.Tracing.Enabled,
		"routes", len(cfg.Notify.Routes))
	return rt, nil
}

// Dispatch sends cmd through the bus.
func (r *Runtime) Dispatch(ctx context.Context, cmd dugout.Command) (dugout.CommandResult, error) {
	return r.Bus.Dispatch(ctx, cmd)
}

// Close releases everything OpenRuntime acquired, newest first.
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

func traceOutput(dest string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(dest) {
	case "", "stderr":
		return os.Stderr, nop, nil
	case "stdout":
		return os.Stdout, nop, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, f.Close, nil
}

// buildNotifier registers one publisher per destination kind used by the
// configured routes.
func buildNotifier(cfg *config.Config, logger dugout.Logger, snsClient sns.Client) (*notify.Notifier, error) {
	nc := cfg.Notify
	opts := []notify.Option{notify.WithLogger(logger)}
	seen := make(map[string]bool)

	for _, rc := range nc.Routes {
		kind, _, ok := strings.Cut(rc.Destination, ":")
		if !ok {
			return nil, fmt.Errorf("invalid notify destination %q", rc.Destination)
		}
		if !seen[kind] {
			seen[kind] = true
			switch kind {
			case "webhook":
				whOpts := []webhook.Option{webhook.WithDefaultHeaders(nc.Webhook.Headers)}
				if nc.Webhook.Timeout > 0 {
					whOpts = append(whOpts, webhook.WithTimeout(nc.Webhook.Timeout))
				}
				opts = append(opts, notify.WithPublisher(webhook.New(whOpts...)))
			case "kafka":
				opts = append(opts, notify.WithPublisher(kafka.New(kafka.WithBrokers(nc.Kafka.Brokers...))))
			case "sns":
				client := snsClient
				if client == nil {
					client = newSNSClient(nc.SNS.Region)
				}
				snsOpts := []sns.Option{sns.WithClient(client)}
				if nc.SNS.FIFO {
					snsOpts = append(snsOpts, sns.WithFIFO())
				}
				opts = append(opts, notify.WithPublisher(sns.New(snsOpts...)))
			default:
				return nil, fmt.Errorf("unknown notify destination kind %q", kind)
			}
		}

		route := notify.Route{Destination: rc.Destination, ScoreOnly: rc.ScoreOnly}
		for _, a := range rc.Actions {
			route.Actions = append(route.Actions, scorebook.ActionType(strings.ToUpper(a)))
		}
		opts = append(opts, notify.WithRoute(route))
	}
	return notify.New(opts...), nil
}

// newSNSClient builds a client from the standard AWS_* credential variables.
func newSNSClient(region string) *awssns.Client {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "EnvironmentVariables",
		}, nil
	})
	return awssns.New(awssns.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	})
}
