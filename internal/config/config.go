package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"AgentDesk/internal/adapter/google"
	"AgentDesk/internal/storage/mysql"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

// Config 描述了 AgentDesk 在启动阶段需要加载的全部配置。
type Config struct {
	Server       ServerConfig       `json:"server" yaml:"server"`
	Storage      StorageConfig      `json:"storage" yaml:"storage"`
	LLM          LLMConfig          `json:"llm" yaml:"llm"`
	Adapters     AdaptersConfig     `json:"adapters" yaml:"adapters"`
	Integrations IntegrationsConfig `json:"integrations" yaml:"integrations"`
	Agents       []AgentConfig      `json:"agents" yaml:"agents" validate:"min=1,unique=ID,dive"`
	TaskQueue    TaskQueueConfig    `json:"task_queue" yaml:"task_queue"`
	SessionGuard SessionGuardConfig `json:"session_guard" yaml:"session_guard"`
	Logging      logger.Config      `json:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
	Alerting     AlertingConfig     `json:"alerting" yaml:"alerting"`
	Runtime      RuntimeConfig      `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址。
type ServerConfig struct {
	Address string `json:"address" yaml:"address" validate:"required"`
}

// StorageConfig 分别描述客户、对话与工作流运行的存储后端。
type StorageConfig struct {
	Customers     SQLConfig `json:"customers" yaml:"customers"`
	Conversations SQLConfig `json:"conversations" yaml:"conversations"`
	Tasks         SQLConfig `json:"tasks" yaml:"tasks"`
}

// SQLConfig 描述一个存储后端；driver 为 memory 时忽略其余字段。
type SQLConfig struct {
	Driver          string   `json:"driver" yaml:"driver" validate:"oneof=memory mysql sqlite"`
	DSN             string   `json:"dsn" yaml:"dsn" validate:"required_unless=Driver memory"`
	MaxOpenConns    int      `json:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int      `json:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// IsMemory 判断是否使用内存实现。
func (c SQLConfig) IsMemory() bool { return c.Driver == "memory" }

// SQL 转换为存储层的连接参数。
func (c SQLConfig) SQL() mysql.Config {
	return mysql.Config{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime.Std(),
	}
}

// LLMConfig 配置补全服务。
type LLMConfig struct {
	// Provider 取值 openai（直接调用 Chat Completions）或 langchain（经 langchaingo）。
	Provider string `json:"provider" yaml:"provider" validate:"oneof=openai langchain"`
	// Backend 仅对 langchain 生效：ollama 或 openai。
	Backend           string   `json:"backend" yaml:"backend" validate:"omitempty,oneof=ollama openai"`
	Model             string   `json:"model" yaml:"model"`
	APIKey            string   `json:"api_key" yaml:"api_key"`
	BaseURL           string   `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Organization      string   `json:"organization" yaml:"organization"`
	RequestTimeout    Duration `json:"request_timeout" yaml:"request_timeout"`
	CompletionTimeout Duration `json:"completion_timeout" yaml:"completion_timeout"`
}

// AdaptersConfig 配置工具适配器。
type AdaptersConfig struct {
	Timeout Duration `json:"timeout" yaml:"timeout"`
	// Google 为空 base_url 时不注册 Google 系列工具的适配器。
	Google google.Config `json:"google" yaml:"google"`
	// CustomerSeedFile 在内存客户存储启动时导入的 JSON/YAML 记录。
	CustomerSeedFile string `json:"customer_seed_file" yaml:"customer_seed_file"`
}

// IntegrationsConfig 覆盖捆绑开关的展开规则。
type IntegrationsConfig struct {
	Bundles map[string][]string `json:"bundles" yaml:"bundles"`
}

// RegistryBundles 转换为工具注册表可用的形式；未配置时返回 nil 以使用内置规则。
func (c IntegrationsConfig) RegistryBundles() map[tool.Integration][]tool.Integration {
	if len(c.Bundles) == 0 {
		return nil
	}
	out := make(map[tool.Integration][]tool.Integration, len(c.Bundles))
	for tag, members := range c.Bundles {
		out[tool.Integration(strings.ToLower(strings.TrimSpace(tag)))] = tool.ParseIntegrations(members...)
	}
	return out
}

// AgentConfig 描述一个智能体画像。
type AgentConfig struct {
	ID           string   `json:"id" yaml:"id" validate:"required"`
	Name         string   `json:"name" yaml:"name" validate:"required"`
	Personality  string   `json:"personality" yaml:"personality"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
	Greeting     string   `json:"greeting" yaml:"greeting"`
	Temperature  *float64 `json:"temperature" yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	// KnowledgeFile 是 JSON/YAML 知识文档或存放 .md/.txt 文档的目录，相对路径以配置文件目录为基准。
	KnowledgeFile       string `json:"knowledge_file" yaml:"knowledge_file"`
	KnowledgeMaxResults int    `json:"knowledge_max_results" yaml:"knowledge_max_results" validate:"gte=0"`
}

// TaskQueueConfig 配置工作流运行队列与消费者。
type TaskQueueConfig struct {
	Driver     string         `json:"driver" yaml:"driver" validate:"oneof=memory redis rabbitmq"`
	Workers    int            `json:"workers" yaml:"workers" validate:"gte=1"`
	MaxRetries int            `json:"max_retries" yaml:"max_retries" validate:"gte=1"`
	Buffer     int            `json:"buffer" yaml:"buffer" validate:"gte=0"`
	Redis      RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 是 Redis 连接参数。
type RedisConfig struct {
	Address  string   `json:"address" yaml:"address"`
	Password string   `json:"password" yaml:"password"`
	DB       int      `json:"db" yaml:"db"`
	Key      string   `json:"key" yaml:"key"`
	Wait     Duration `json:"wait" yaml:"wait"`
}

// RabbitMQConfig 是 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// SessionGuardConfig 配置跨进程的会话互斥。memory 只在进程内互斥。
type SessionGuardConfig struct {
	Driver string      `json:"driver" yaml:"driver" validate:"oneof=memory redis"`
	Redis  RedisConfig `json:"redis" yaml:"redis"`
	TTL    Duration    `json:"ttl" yaml:"ttl"`
}

// MetricsConfig 配置 Prometheus 指标。Address 为空时只在 API 服务的 /metrics 暴露。
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}

// AlertingConfig 配置工作流最终失败时的告警渠道。审计日志渠道始终启用。
type AlertingConfig struct {
	WebhookURL     string   `json:"webhook_url" yaml:"webhook_url" validate:"omitempty,url"`
	WebhookTimeout Duration `json:"webhook_timeout" yaml:"webhook_timeout"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load 解析指定路径的配置文件，.yaml/.yml 按 YAML 解析，其余按 JSON 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只依赖默认值的配置，用于未提供配置文件的本地运行。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyDefaults(baseDir)
	return &cfg
}

// Validate 校验结构约束以及字段之间的依赖。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("配置校验失败: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("配置校验失败: %w", err)
	}
	if c.TaskQueue.Driver == "redis" && c.TaskQueue.Redis.Address == "" {
		return errors.New("配置校验失败: task_queue.redis.address is required for the redis driver")
	}
	if c.TaskQueue.Driver == "rabbitmq" && c.TaskQueue.RabbitMQ.URL == "" {
		return errors.New("配置校验失败: task_queue.rabbitmq.url is required for the rabbitmq driver")
	}
	if c.SessionGuard.Driver == "redis" && c.SessionGuard.Redis.Address == "" {
		return errors.New("配置校验失败: session_guard.redis.address is required for the redis driver")
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return errors.New("配置校验失败: llm.api_key is required for the openai provider")
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	for _, store := range []*SQLConfig{&c.Storage.Customers, &c.Storage.Conversations, &c.Storage.Tasks} {
		if store.Driver == "" {
			store.Driver = "memory"
		}
		store.Driver = strings.ToLower(store.Driver)
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.CompletionTimeout <= 0 {
		c.LLM.CompletionTimeout = Duration(60 * time.Second)
	}

	if c.Adapters.Timeout <= 0 {
		c.Adapters.Timeout = Duration(30 * time.Second)
	}
	if c.Adapters.Google.APIKey == "" {
		c.Adapters.Google.APIKey = os.Getenv("AGENTDESK_FUNCTIONS_KEY")
	}
	c.Adapters.CustomerSeedFile = resolve(baseDir, c.Adapters.CustomerSeedFile)

	if len(c.Agents) == 0 {
		c.Agents = []AgentConfig{{ID: "assistant", Name: "Assistant", Personality: "friendly and concise"}}
	}
	for i := range c.Agents {
		c.Agents[i].KnowledgeFile = resolve(baseDir, c.Agents[i].KnowledgeFile)
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 4
	}
	if c.TaskQueue.MaxRetries <= 0 {
		c.TaskQueue.MaxRetries = 3
	}
	if c.TaskQueue.Buffer <= 0 {
		c.TaskQueue.Buffer = 256
	}

	if c.SessionGuard.Driver == "" {
		c.SessionGuard.Driver = "memory"
	}
	if c.SessionGuard.TTL <= 0 {
		// 两次补全加一次适配器调用的上限。
		c.SessionGuard.TTL = Duration(2*c.LLM.CompletionTimeout.Std() + c.Adapters.Timeout.Std())
	}

	if c.Alerting.WebhookTimeout <= 0 {
		c.Alerting.WebhookTimeout = Duration(10 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir)
	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
