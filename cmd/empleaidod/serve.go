package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"Empleaido-Core/internal/activation"
	"Empleaido-Core/internal/api"
	"Empleaido-Core/internal/assistant"
	"Empleaido-Core/internal/audit"
	"Empleaido-Core/internal/config"
	"Empleaido-Core/internal/execution"
	"Empleaido-Core/internal/gate"
	"Empleaido-Core/internal/knowledge"
	"Empleaido-Core/internal/life"
	"Empleaido-Core/internal/llm"
	"Empleaido-Core/internal/llm/gemini"
	"Empleaido-Core/internal/llm/openai"
	"Empleaido-Core/internal/observability/alerting"
	"Empleaido-Core/internal/observability/metrics"
	"Empleaido-Core/internal/onboarding"
	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/ratelimit"
	"Empleaido-Core/internal/skill"
	"Empleaido-Core/internal/storage/sqlstore"
	"Empleaido-Core/internal/workspace"
	"Empleaido-Core/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP API 服务",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return serve(cmd.Context(), cfg)
}

// backends 汇总所选存储驱动提供的全部仓储。
type backends struct {
	activations activation.Store
	pending     execution.PendingStore
	life        life.Store
	audit       interface {
		audit.Sink
		audit.Reader
	}
	health func(context.Context) error
	close  func() error
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	driver := strings.ToLower(cfg.Storage.Driver)
	if driver == "memory" {
		return &backends{
			activations: activation.NewMemoryStore(),
			pending:     execution.NewMemoryPendingStore(),
			life:        life.NewMemoryStore(),
			audit:       audit.NewMemorySink(),
			close:       func() error { return nil },
		}, nil
	}
	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:          driver,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime(),
	})
	if err != nil {
		return nil, err
	}
	return &backends{
		activations: db.Activations(),
		pending:     db.Pending(),
		life:        db.Life(),
		audit:       db.Audit(),
		health:      db.Ping,
		close:       db.Close,
	}, nil
}

func buildAuditSink(cfg *config.Config, store audit.Sink) (*audit.Fanout, func(), error) {
	var (
		sinks   []audit.Named
		closers []func() error
	)
	for _, name := range cfg.Audit.Sinks {
		switch strings.ToLower(name) {
		case "log":
			sinks = append(sinks, audit.Named{Name: "log", Sink: audit.NewLogSink(logger.Audit())})
		case "store":
			sinks = append(sinks, audit.Named{Name: "store", Sink: store})
		case "rabbitmq":
			sink, err := audit.NewRabbitMQSink(audit.RabbitMQConfig{
				URL:      cfg.Audit.RabbitMQ.URL,
				Exchange: cfg.Audit.RabbitMQ.Exchange,
				Queue:    cfg.Audit.RabbitMQ.Queue,
				Durable:  cfg.Audit.RabbitMQ.Durable,
			})
			if err != nil {
				return nil, nil, err
			}
			closers = append(closers, sink.Close)
			sinks = append(sinks, audit.Named{Name: "rabbitmq", Sink: sink, BestEffort: true})
		}
	}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.L().Warn("关闭审计目标失败", "error", err)
			}
		}
	}
	return audit.NewFanout(sinks...), closeAll, nil
}

func buildLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	policy := ratelimit.NewPolicy(cfg.RateLimit.Tiers)
	if strings.ToLower(cfg.RateLimit.Driver) == "redis" {
		return ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Address:   cfg.RateLimit.Redis.Address,
			Password:  cfg.RateLimit.Redis.Password,
			DB:        cfg.RateLimit.Redis.DB,
			KeyPrefix: cfg.RateLimit.Redis.KeyPrefix,
		}, policy)
	}
	return ratelimit.NewMemoryLimiter(policy), nil
}

// createLLMClient 按配置创建模型客户端。provider 为 none 时返回 nil。
func createLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch strings.ToLower(cfg.LLM.Provider) {
	case "none":
		return nil, nil
	case "openai":
		apiKey := config.ResolveSecret(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.APIKeyEnv)
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		client, err = openai.NewClient(openai.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.LLM.OpenAI.BaseURL,
			Model:          cfg.LLM.OpenAI.Model,
			EmbeddingModel: cfg.LLM.OpenAI.EmbeddingModel,
			Timeout:        cfg.LLM.OpenAI.Timeout(),
		})
	case "gemini":
		client, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:         config.ResolveSecret(cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.APIKeyEnv),
			Model:          cfg.LLM.Gemini.Model,
			EmbeddingModel: cfg.LLM.Gemini.EmbeddingModel,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(client, cfg.LLM.Provider, cfg.LLM.Retries, cfg.LLM.RetryBackoff()), nil
}

func loadRegistry(cfg *config.Config) (*skill.Registry, error) {
	if cfg.Registry.Path == "" {
		return skill.Default(), nil
	}
	return skill.LoadFile(cfg.Registry.Path)
}

func buildReporter(cfg *config.Config, m *metrics.Metrics) *alerting.Reporter {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.Alerting.WebhookURL,
			Client: &http.Client{Timeout: time.Duration(cfg.Alerting.TimeoutSeconds) * time.Second},
		})
	}
	return alerting.NewReporter(alerting.NewFanout(notifiers...), m.ObserveAlert)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("empleaidod")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	stores, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.close(); err != nil {
			log.Warn("关闭存储失败", "error", err)
		}
	}()

	sink, closeSinks, err := buildAuditSink(cfg, stores.audit)
	if err != nil {
		return err
	}
	defer closeSinks()

	limiter, err := buildLimiter(cfg)
	if err != nil {
		return err
	}
	defer limiter.Close()

	model, err := createLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New(cfg.Server.RuntimeMetrics)

	var extractor preference.Extractor = preference.NewKeywordExtractor()
	runner := execution.Runner(execution.OfflineRunner{})
	routerOpts := []assistant.Option{assistant.WithAuditSink(sink)}
	if model != nil {
		extractor = preference.NewModelExtractor(model, extractor)
		runner = execution.NewModelRunner(model)
		routerOpts = append(routerOpts, assistant.WithModel(model))
		if cfg.Assistant.SemanticMatching {
			routerOpts = append(routerOpts, assistant.WithSemanticMatcher(assistant.NewSemanticMatcher(model, cfg.Assistant.Threshold)))
		}
	}
	if cfg.Knowledge.Path != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Path, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		routerOpts = append(routerOpts, assistant.WithKnowledge(provider))
	}

	g := gate.New(registry, sink, gate.WithObserver(func(req gate.Request, v gate.Verdict) {
		m.ObserveVerdict(req.AgentID, string(v.Outcome), string(v.ReasonCode))
	}))

	executor := execution.NewService(g, stores.activations, stores.pending,
		execution.WithRunner(runner),
		execution.WithLimiter(limiter),
		execution.WithLifeStore(stores.life),
		execution.WithAuditSink(sink),
		execution.WithConfirmationTTL(cfg.Runtime.ConfirmationTTL()),
	)

	ws, err := workspace.New(cfg.Runtime.WorkspaceDir)
	if err != nil {
		return err
	}

	onboard := onboarding.NewService(stores.activations, onboarding.NewMachine(registry, extractor), registry,
		onboarding.WithWorkspace(ws),
		onboarding.WithRouter(assistant.NewRouter(registry, executor, routerOpts...)),
		onboarding.WithAuditSink(sink),
		onboarding.WithRetries(cfg.Storage.SaveRetries),
		onboarding.WithTransitionObserver(func(agentID string, from, to activation.Phase) {
			m.ObserveTransition(agentID, string(from), string(to))
		}),
	)

	server := api.NewServer(cfg.Server.Address, api.Dependencies{
		Onboarding: onboard,
		Execution:  executor,
		Gate:       g,
		Registry:   registry,
		Audit:      stores.audit,
		Life:       stores.life,
		Metrics:    m,
		Alerts:     buildReporter(cfg, m),
		Health:     stores.health,
	})

	log.Info("empleaidod 启动",
		"address", cfg.Server.Address,
		"storage", cfg.Storage.Driver,
		"llm", cfg.LLM.Provider,
		"agents", len(registry.Agents()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(groupCtx)
	})
	if cfg.Server.MetricsAddress != "" {
		group.Go(func() error {
			return m.StartServer(groupCtx, cfg.Server.MetricsAddress)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
