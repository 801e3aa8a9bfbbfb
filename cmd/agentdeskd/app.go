package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"AgentDesk/internal/adapter"
	"AgentDesk/internal/adapter/crm"
	"AgentDesk/internal/adapter/google"
	"AgentDesk/internal/agent"
	"AgentDesk/internal/config"
	"AgentDesk/internal/customer"
	"AgentDesk/internal/knowledge"
	"AgentDesk/internal/llm"
	"AgentDesk/internal/llm/langchain"
	"AgentDesk/internal/llm/openai"
	"AgentDesk/internal/observability/alerting"
	"AgentDesk/internal/observability/metrics"
	"AgentDesk/internal/storage/mysql"
	"AgentDesk/internal/storage/redis"
	"AgentDesk/internal/task"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

// application 持有一次进程运行所需的全部组件。
type application struct {
	cfg       *config.Config
	sessions  *agent.SessionManager
	customers *customer.Resolver
	runs      *task.Service
	processor *task.Processor

	closers []func() error
}

// Close 按创建的逆序释放资源。
func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *application) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// buildApplication 根据配置装配存储、补全服务、适配器、会话管理与工作流处理器。
// 失败时已创建的资源会被释放。
func buildApplication(ctx context.Context, cfg *config.Config) (_ *application, err error) {
	app := &application{cfg: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	llmClient, err := newLLMClient(cfg.LLM)
	if err != nil {
		return nil, err
	}

	customerStore, err := newCustomerStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.onClose(customerStore.Close)
	app.customers = customer.NewResolver(customerStore)

	adapters := adapter.NewSet()
	adapters.Register(tool.NameCRM, crm.New(app.customers))
	if cfg.Adapters.Google.BaseURL != "" {
		googleCfg := cfg.Adapters.Google
		if googleCfg.Timeout <= 0 {
			googleCfg.Timeout = cfg.Adapters.Timeout.Std()
		}
		client, err := google.NewClient(googleCfg)
		if err != nil {
			return nil, err
		}
		google.Register(adapters, client)
	} else {
		logger.L().Warn("未配置 Google 函数服务，Google 系列工具调用将返回适配器错误")
	}

	registry, err := tool.NewRegistry(tool.Builtin(), tool.WithBundles(cfg.Integrations.RegistryBundles()))
	if err != nil {
		return nil, err
	}

	engine := agent.New(llmClient, registry, adapters,
		agent.WithCompletionTimeout(cfg.LLM.CompletionTimeout.Std()),
		agent.WithAdapterTimeout(cfg.Adapters.Timeout.Std()),
		agent.WithObserver(metrics.EngineObserver{}),
	)

	profiles, err := buildProfiles(cfg.Agents)
	if err != nil {
		return nil, err
	}

	var managerOpts []agent.ManagerOption
	repo, err := newConversationRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := repo.(interface{ Close() error }); ok {
		app.onClose(closer.Close)
	}
	managerOpts = append(managerOpts, agent.WithRepository(repo))

	if cfg.SessionGuard.Driver == "redis" {
		lease, err := redis.NewSessionLease(ctx, redis.SessionLeaseConfig{
			Address:  cfg.SessionGuard.Redis.Address,
			Password: cfg.SessionGuard.Redis.Password,
			DB:       cfg.SessionGuard.Redis.DB,
			Prefix:   cfg.SessionGuard.Redis.Key,
			TTL:      cfg.SessionGuard.TTL.Std(),
		})
		if err != nil {
			return nil, err
		}
		app.onClose(lease.Close)
		managerOpts = append(managerOpts, agent.WithLease(lease))
	}
	app.sessions = agent.NewSessionManager(engine, profiles, managerOpts...)

	runStore, err := newRunStore(ctx, cfg.Storage.Tasks)
	if err != nil {
		return nil, err
	}
	queue, err := newRunQueue(ctx, cfg.TaskQueue)
	if err != nil {
		_ = runStore.Close()
		return nil, err
	}
	app.runs = task.NewService(runStore, queue, cfg.TaskQueue.MaxRetries)
	app.onClose(app.runs.Close)

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.Alerting.WebhookURL,
			Client: &http.Client{Timeout: cfg.Alerting.WebhookTimeout.Std()},
		})
	}
	app.processor = task.NewProcessor(task.NewEngineExecutor(app.sessions), runStore, queue, queue,
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)

	logger.L().Info("AgentDesk 组件装配完成",
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.Int("agents", len(profiles)),
		slog.String("task_queue", cfg.TaskQueue.Driver),
		slog.String("session_guard", cfg.SessionGuard.Driver),
	)
	return app, nil
}

func newLLMClient(cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Organization: cfg.Organization,
			Timeout:      cfg.RequestTimeout.Std(),
		})
	case "langchain":
		return langchain.NewFromConfig(langchain.Config{
			Backend:   cfg.Backend,
			Model:     cfg.Model,
			ServerURL: cfg.BaseURL,
			APIKey:    cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("未知的补全服务 provider: %s", cfg.Provider)
	}
}

func newCustomerStore(ctx context.Context, cfg *config.Config) (customer.Store, error) {
	if !cfg.Storage.Customers.IsMemory() {
		return mysql.NewSQLCustomerStore(ctx, cfg.Storage.Customers.SQL())
	}
	var seed []customer.Record
	if cfg.Adapters.CustomerSeedFile != "" {
		records, err := customer.LoadSeed(cfg.Adapters.CustomerSeedFile)
		if err != nil {
			return nil, err
		}
		seed = records
	}
	return customer.NewMemoryStore(seed...), nil
}

func newConversationRepository(ctx context.Context, cfg *config.Config) (mysql.ConversationRepository, error) {
	if cfg.Storage.Conversations.IsMemory() {
		return mysql.NewMemoryConversationRepository(filepath.Join(cfg.Runtime.DataDir, "conversations"))
	}
	return mysql.NewSQLConversationRepository(ctx, cfg.Storage.Conversations.SQL())
}

func newRunStore(ctx context.Context, cfg config.SQLConfig) (task.Store, error) {
	if cfg.IsMemory() {
		return task.NewMemoryStore(), nil
	}
	return task.NewSQLStore(ctx, cfg.SQL())
}

func newRunQueue(ctx context.Context, cfg config.TaskQueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "memory":
		return task.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Key,
			BlockWait: cfg.Redis.Wait.Std(),
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

func buildProfiles(agents []config.AgentConfig) ([]agent.Profile, error) {
	profiles := make([]agent.Profile, 0, len(agents))
	for _, a := range agents {
		profile := agent.Profile{
			ID:           a.ID,
			Name:         a.Name,
			Personality:  a.Personality,
			SystemPrompt: a.SystemPrompt,
			Greeting:     a.Greeting,
			Temperature:  a.Temperature,
		}
		if a.KnowledgeFile != "" {
			provider, err := knowledge.LoadStaticProvider(a.KnowledgeFile, a.KnowledgeMaxResults)
			if err != nil {
				return nil, fmt.Errorf("加载智能体 %s 的知识库失败: %w", a.ID, err)
			}
			profile.Knowledge = provider
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}
