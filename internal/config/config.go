package config

import (
	"log"
	"os"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName  string `toml:"appName"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Https    bool   `toml:"https"`    // 以 TLS 启动并强制 https 跳转
	CertFile string `toml:"certFile"` // 默认 cert.pem
	KeyFile  string `toml:"keyFile"`  // 默认 key.pem
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type JwtConfig struct {
	Key         string `toml:"key"`
	ExpireHours int    `toml:"expireHours"`
	Issuer      string `toml:"issuer"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type KafkaConfig struct {
	Brokers     []string `toml:"brokers"`
	ClientID    string   `toml:"clientID"`
	AuditTopic  string   `toml:"auditTopic"`
	Partitions  int32    `toml:"partitions"`
	Replication int16    `toml:"replication"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

// AISpeechConfig 语音转写（Whisper 兼容接口）配置
type AISpeechConfig struct {
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

type AIConfig struct {
	ChatModel AIChatModelConfig `toml:"chatModel"`
	Speech    AISpeechConfig    `toml:"speech"`
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	HistoryLimit     int `toml:"historyLimit"`     // 会话历史条数上限
	IdleMinutes      int `toml:"idleMinutes"`      // 超过该空闲时间自动结束会话
	PurgeDays        int `toml:"purgeDays"`        // 已结束会话保留天数
	SweepIntervalMin int `toml:"sweepIntervalMin"` // 清理任务执行间隔
}

// GatewayTelegramConfig Telegram 通道配置
type GatewayTelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
}

// GatewayWebhookConfig Webhook（WhatsApp 云 API 风格）通道配置
type GatewayWebhookConfig struct {
	Enabled     bool   `toml:"enabled"`
	VerifyToken string `toml:"verifyToken"`
	CallbackURL string `toml:"callbackURL"`
}

type GatewayTerminalConfig struct {
	Enabled bool   `toml:"enabled"`
	UserID  string `toml:"userID"`
}

type GatewayWebsocketConfig struct {
	Enabled bool `toml:"enabled"`
}

type GatewayConfig struct {
	Telegram  GatewayTelegramConfig  `toml:"telegram"`
	Webhook   GatewayWebhookConfig   `toml:"webhook"`
	Terminal  GatewayTerminalConfig  `toml:"terminal"`
	Websocket GatewayWebsocketConfig `toml:"websocket"`
}

// OrchestratorConfig 执行编排配置
type OrchestratorConfig struct {
	MaxToolCalls       int  `toml:"maxToolCalls"`       // 单轮对话最多执行的能力调用数
	RespondTimeoutSecs int  `toml:"respondTimeoutSecs"` // 单次 Responder 调用超时
	PatternRules       bool `toml:"patternRules"`       // 是否启用确定性意图规则
}

// CapabilityConfig 能力目录与配额配置
type CapabilityConfig struct {
	DefaultDailyBudget int `toml:"defaultDailyBudget"` // 默认每日预算（抽象单位）
	CallTimeoutSecs    int `toml:"callTimeoutSecs"`    // 单次能力调用超时
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	PollSeconds      int      `toml:"pollSeconds"`      // 轮询周期
	ClaimBatch       int      `toml:"claimBatch"`       // 单次认领的到期任务上限
	MinConfidence    float64  `toml:"minConfidence"`    // 自然语言解析接受阈值
	CommandAllowList []string `toml:"commandAllowList"` // run-command 动作白名单，默认关闭
	WebhookTimeout   int      `toml:"webhookTimeoutSecs"`
}

// MCPConfig 内置 MCP Server 配置
type MCPConfig struct {
	Enabled     bool   `toml:"enabled"`
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
}

// VaultConfig 凭据加密配置
type VaultConfig struct {
	Secret string `toml:"secret"`
}

type Config struct {
	MainConfig         `toml:"mainConfig"`
	MysqlConfig        `toml:"mysqlConfig"`
	JwtConfig          `toml:"jwtConfig"`
	LogConfig          `toml:"logConfig"`
	RedisConfig        `toml:"redisConfig"`
	KafkaConfig        `toml:"kafkaConfig"`
	AIConfig           `toml:"aiConfig"`
	SessionConfig      `toml:"sessionConfig"`
	GatewayConfig      `toml:"gatewayConfig"`
	OrchestratorConfig `toml:"orchestratorConfig"`
	CapabilityConfig   `toml:"capabilityConfig"`
	SchedulerConfig    `toml:"schedulerConfig"`
	MCPConfig          `toml:"mcpConfig"`
	VaultConfig        `toml:"vaultConfig"`
}

var config *Config

func LoadConfig() error {
	configPath := os.Getenv("NOTALINK_CONFIG")
	if configPath == "" {
		configPath = "configs/config_local.toml"
	}
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		applyDefaults(config)
		return err
	}
	applyDefaults(config)
	return nil
}

// applyDefaults 空值兜底，保证未配置时仍可运行
func applyDefaults(c *Config) {
	if c.MainConfig.CertFile == "" {
		c.MainConfig.CertFile = "cert.pem"
	}
	if c.MainConfig.KeyFile == "" {
		c.MainConfig.KeyFile = "key.pem"
	}
	if c.KafkaConfig.AuditTopic == "" {
		c.KafkaConfig.AuditTopic = "notalink.audit"
	}
	if c.SessionConfig.HistoryLimit <= 0 {
		c.SessionConfig.HistoryLimit = 50
	}
	if c.SessionConfig.IdleMinutes <= 0 {
		c.SessionConfig.IdleMinutes = 12 * 60
	}
	if c.SessionConfig.PurgeDays <= 0 {
		c.SessionConfig.PurgeDays = 30
	}
	if c.SessionConfig.SweepIntervalMin <= 0 {
		c.SessionConfig.SweepIntervalMin = 10
	}
	if c.OrchestratorConfig.MaxToolCalls <= 0 {
		c.OrchestratorConfig.MaxToolCalls = 5
	}
	if c.OrchestratorConfig.RespondTimeoutSecs <= 0 {
		c.OrchestratorConfig.RespondTimeoutSecs = 120
	}
	if c.CapabilityConfig.DefaultDailyBudget <= 0 {
		c.CapabilityConfig.DefaultDailyBudget = 100
	}
	if c.CapabilityConfig.CallTimeoutSecs <= 0 {
		c.CapabilityConfig.CallTimeoutSecs = 30
	}
	if c.SchedulerConfig.PollSeconds <= 0 {
		c.SchedulerConfig.PollSeconds = 30
	}
	if c.SchedulerConfig.ClaimBatch <= 0 {
		c.SchedulerConfig.ClaimBatch = 20
	}
	if c.SchedulerConfig.MinConfidence <= 0 {
		c.SchedulerConfig.MinConfidence = 0.8
	}
	if c.SchedulerConfig.WebhookTimeout <= 0 {
		c.SchedulerConfig.WebhookTimeout = 15
	}
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
	}
	return config
}
