package http

import (
	"NotaLink/internal/config"
	"NotaLink/internal/initial"
	jwtMiddleware "NotaLink/internal/middleware/jwt"
	capabilityService "NotaLink/internal/modules/capability/application/service"
	"NotaLink/internal/modules/capability/infrastructure/budget"
	"NotaLink/internal/modules/capability/infrastructure/mcpserver"
	"NotaLink/internal/modules/capability/infrastructure/mq"
	"NotaLink/internal/modules/capability/infrastructure/mq/kafka"
	capabilityPersistence "NotaLink/internal/modules/capability/infrastructure/persistence"
	"NotaLink/internal/modules/capability/infrastructure/queue"
	"NotaLink/internal/modules/capability/interface/builtin"
	capabilityHandler "NotaLink/internal/modules/capability/interface/http"
	gatewayService "NotaLink/internal/modules/gateway/application/service"
	"NotaLink/internal/modules/gateway/infrastructure/adapters/telegram"
	"NotaLink/internal/modules/gateway/infrastructure/adapters/terminal"
	"NotaLink/internal/modules/gateway/infrastructure/adapters/webhook"
	websocketAdapter "NotaLink/internal/modules/gateway/infrastructure/adapters/websocket"
	speechInfra "NotaLink/internal/modules/gateway/infrastructure/speech"
	gatewayHandler "NotaLink/internal/modules/gateway/interface/http"
	orchestratorService "NotaLink/internal/modules/orchestrator/application/service"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	"NotaLink/internal/modules/orchestrator/infrastructure/intent"
	"NotaLink/internal/modules/orchestrator/infrastructure/llm"
	"NotaLink/internal/modules/orchestrator/infrastructure/pipeline"
	einoResponder "NotaLink/internal/modules/orchestrator/infrastructure/responder"
	schedulerService "NotaLink/internal/modules/scheduler/application/service"
	schedulerPersistence "NotaLink/internal/modules/scheduler/infrastructure/persistence"
	taskHandler "NotaLink/internal/modules/scheduler/interface/http"
	taskScheduler "NotaLink/internal/modules/scheduler/interface/scheduler"
	sessionService "NotaLink/internal/modules/session/application/service"
	sessionPersistence "NotaLink/internal/modules/session/infrastructure/persistence"
	sessionHandler "NotaLink/internal/modules/session/interface/http"
	userService "NotaLink/internal/modules/user/application/service"
	userPersistence "NotaLink/internal/modules/user/infrastructure/persistence"
	userHandler "NotaLink/internal/modules/user/interface/http"
	"NotaLink/pkg/redis"
	"NotaLink/pkg/ssl"
	"NotaLink/pkg/util/myjwt"
	"NotaLink/pkg/vault"
	"NotaLink/pkg/zlog"
	"context"
	"net/http"
	"strings"
	"time"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mcpServerLib "github.com/mark3labs/mcp-go/server"
)

var GE *gin.Engine

// 后台组件，由 main 负责启停
var (
	Gateway   gatewayService.GatewayService
	Scheduler *taskScheduler.SchedulerManager
	Sessions  sessionService.SessionService
	Relay     *queue.AuditRelay // 未配置 Kafka 时为 nil
	AuditPub  mq.Publisher      // 同上
)

func init() {
	conf := config.GetConfig()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	if conf.MainConfig.Https {
		GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))
	}

	// 仓储
	sessionRepo := sessionPersistence.NewSessionRepository(initial.GormDB)
	messageRepo := sessionPersistence.NewMessageRepository(initial.GormDB)
	entitlementRepo := capabilityPersistence.NewEntitlementRepository(initial.GormDB)
	usageRepo := capabilityPersistence.NewUsageRepository(initial.GormDB)
	auditRepo := capabilityPersistence.NewAuditOutboxRepository(initial.GormDB)
	credentialRepo := capabilityPersistence.NewCredentialRepository(initial.GormDB)
	taskRepo := schedulerPersistence.NewTaskRepository(initial.GormDB)
	execRepo := schedulerPersistence.NewExecutionRepository(initial.GormDB)
	accountRepo := userPersistence.NewAccountRepository(initial.GormDB)

	// 会话存储
	sessionSvc := sessionService.NewSessionService(
		sessionRepo, messageRepo,
		conf.SessionConfig.HistoryLimit,
		time.Duration(conf.SessionConfig.IdleMinutes)*time.Minute,
		time.Duration(conf.SessionConfig.PurgeDays)*24*time.Hour,
	)

	// 能力目录：预算计数器优先 Redis，单机退化为进程内原子计数
	var counter budget.Counter
	if redis.IsConnected() {
		counter = budget.NewRedisCounter()
	} else {
		zlog.Warn("redis unavailable, capability budget counter falls back to in-memory")
		counter = budget.NewMemoryCounter()
	}
	capabilitySvc := capabilityService.NewCapabilityService(
		entitlementRepo, usageRepo, auditRepo, counter,
		conf.CapabilityConfig.DefaultDailyBudget,
		time.Duration(conf.CapabilityConfig.CallTimeoutSecs)*time.Second,
	)

	// 凭据库
	var credentialSvc capabilityService.CredentialService
	if v, err := vault.New(conf.VaultConfig.Secret); err != nil {
		zlog.Warn("credential vault disabled: " + err.Error())
	} else {
		credentialSvc = capabilityService.NewCredentialService(credentialRepo, v)
	}

	// 模型与编排。模型未配置时管线缺席，意图规则仍然可用
	var (
		resp responder.Responder
		pipe *pipeline.TurnPipeline
	)
	chatModel, meta, err := llm.NewChatModelFromConfig(context.Background(), conf, credentialSvc)
	if err != nil {
		zlog.Warn("chat model unavailable: " + err.Error())
	} else {
		r, rerr := einoResponder.NewEinoResponder(chatModel, meta)
		if rerr != nil {
			zlog.Error("responder init failed: " + rerr.Error())
		} else {
			resp = r
			p, perr := pipeline.NewTurnPipeline(
				messageRepo, capabilitySvc, resp,
				conf.OrchestratorConfig.MaxToolCalls,
				time.Duration(conf.OrchestratorConfig.RespondTimeoutSecs)*time.Second,
			)
			if perr != nil {
				zlog.Error("turn pipeline init failed: " + perr.Error())
			} else {
				pipe = p
			}
		}
	}
	var rules *intent.Matcher
	if conf.OrchestratorConfig.PatternRules {
		rules = intent.NewMatcher()
	}
	orchestratorSvc := orchestratorService.NewOrchestratorService(rules, pipe, capabilitySvc, sessionSvc)

	// 语音转写，未配置时网关对音频降级为占位符
	transcriber, err := speechInfra.NewWhisperTranscriber(conf.AIConfig.Speech)
	if err != nil {
		zlog.Info("speech transcriber disabled: " + err.Error())
	}

	// 网关与通道适配器
	gatewaySvc := gatewayService.NewGatewayService(sessionSvc, orchestratorSvc, transcriber)
	if conf.GatewayConfig.Telegram.Enabled {
		if a, aerr := telegram.NewAdapter(conf.GatewayConfig.Telegram); aerr != nil {
			zlog.Error("telegram adapter init failed: " + aerr.Error())
		} else if rerr := gatewaySvc.Register(a); rerr != nil {
			zlog.Error("telegram adapter register failed: " + rerr.Error())
		}
	}
	var webhookA *webhook.Adapter
	if conf.GatewayConfig.Webhook.Enabled {
		webhookA = webhook.NewAdapter(conf.GatewayConfig.Webhook)
		if rerr := gatewaySvc.Register(webhookA); rerr != nil {
			zlog.Error("webhook adapter register failed: " + rerr.Error())
		}
	}
	var wssA *websocketAdapter.Adapter
	if conf.GatewayConfig.Websocket.Enabled {
		wssA = websocketAdapter.NewAdapter()
		if rerr := gatewaySvc.Register(wssA); rerr != nil {
			zlog.Error("websocket adapter register failed: " + rerr.Error())
		}
	}
	if conf.GatewayConfig.Terminal.Enabled {
		if rerr := gatewaySvc.Register(terminal.NewAdapter(conf.GatewayConfig.Terminal)); rerr != nil {
			zlog.Error("terminal adapter register failed: " + rerr.Error())
		}
	}

	// 定时任务
	parser := schedulerService.NewParserService()
	taskSvc := schedulerService.NewTaskService(taskRepo, execRepo, parser, conf.SchedulerConfig.MinConfidence)
	executor := schedulerService.NewExecutorService(
		sessionSvc, gatewaySvc, resp, credentialSvc,
		conf.SchedulerConfig.CommandAllowList,
		conf.SchedulerConfig.WebhookTimeout,
	)
	schedulerMgr := taskScheduler.NewSchedulerManager(taskRepo, execRepo, auditRepo, executor, conf.SchedulerConfig)

	// 内置能力目录。注册失败属于启动期编码错误，直接终止
	if err := builtin.Register(capabilitySvc, builtin.Deps{
		Sessions:  sessionSvc,
		Tasks:     taskSvc,
		Gateway:   gatewaySvc,
		Responder: resp,
	}); err != nil {
		zlog.Fatal("builtin capability register failed: " + err.Error())
	}

	// 审计出账中继
	if len(conf.KafkaConfig.Brokers) > 0 {
		if terr := kafka.EnsureAuditTopic(conf.KafkaConfig); terr != nil {
			zlog.Warn("kafka audit topic ensure failed: " + terr.Error())
		}
		if pub, perr := kafka.NewAuditPublisher(conf.KafkaConfig); perr != nil {
			zlog.Error("kafka audit publisher init failed: " + perr.Error())
		} else {
			AuditPub = pub
			Relay = queue.NewAuditRelay(auditRepo, pub, conf.KafkaConfig.AuditTopic, 0, 0)
		}
	}

	accountSvc := userService.NewAccountService(accountRepo)

	Gateway = gatewaySvc
	Scheduler = schedulerMgr
	Sessions = sessionSvc

	// 处理器与路由
	authH := userHandler.NewAuthHandler(accountSvc)
	gatewayH := gatewayHandler.NewGatewayHandler(webhookA, wssA)
	sessionH := sessionHandler.NewSessionHandler(sessionSvc)
	capabilityH := capabilityHandler.NewCapabilityHandler(capabilitySvc, credentialSvc)
	taskH := taskHandler.NewTaskHandler(taskSvc)

	GE.POST("/auth/token", authH.IssueToken)
	GE.GET("/wss", gatewayH.Connect)
	GE.GET("/gateway/webhook/:channel", gatewayH.VerifyWebhook)
	GE.POST("/gateway/webhook/:channel", gatewayH.ReceiveWebhook)

	if conf.MCPConfig.Enabled {
		mountMCP(GE, conf, capabilitySvc)
	}

	authed := GE.Group("/")
	authed.Use(jwtMiddleware.Auth())
	authed.GET("/auth/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"uuid":     c.GetString("uuid"),
			"username": c.GetString("username"),
		})
	})
	authed.POST("/session/openSession", sessionH.OpenSession)
	authed.POST("/session/getSessionList", sessionH.GetSessionList)
	authed.POST("/session/getHistory", sessionH.GetHistory)
	authed.POST("/session/pauseSession", sessionH.PauseSession)
	authed.POST("/session/resumeSession", sessionH.ResumeSession)
	authed.POST("/session/endSession", sessionH.EndSession)
	authed.POST("/session/deleteSession", sessionH.DeleteSession)
	authed.POST("/session/bindNotebook", sessionH.BindNotebook)
	authed.POST("/session/unbindNotebook", sessionH.UnbindNotebook)
	authed.POST("/session/enableIntegration", sessionH.EnableIntegration)
	authed.POST("/session/disableIntegration", sessionH.DisableIntegration)
	authed.POST("/session/setVar", sessionH.SetVar)
	authed.POST("/capability/getCapabilityList", capabilityH.ListCapabilities)
	authed.POST("/capability/getUsage", capabilityH.GetUsage)
	authed.POST("/capability/entitle", capabilityH.Entitle)
	authed.POST("/capability/setCredential", capabilityH.SetCredential)
	authed.POST("/capability/deleteCredential", capabilityH.DeleteCredential)
	authed.POST("/task/createTask", taskH.CreateTask)
	authed.POST("/task/getTaskList", taskH.GetTaskList)
	authed.POST("/task/cancelTask", taskH.CancelTask)
	authed.POST("/task/enableTask", taskH.EnableTask)
	authed.POST("/task/deleteTask", taskH.DeleteTask)
	authed.POST("/task/getTaskExecutions", taskH.GetTaskExecutions)
}

// mountMCP 把能力目录以 MCP streamable HTTP 挂到 /mcp。
// 身份沿用网关的 jwt：Authorization 头解析出的 uuid 注入请求上下文
func mountMCP(ge *gin.Engine, conf *config.Config, caps capabilityService.CapabilityService) {
	name := conf.MCPConfig.Name
	if name == "" {
		name = "notalink"
	}
	version := conf.MCPConfig.Version
	if version == "" {
		version = "dev"
	}
	catalog := mcpserver.NewCatalogServer(name, version, caps)
	streamable := mcpServerLib.NewStreamableHTTPServer(catalog,
		mcpServerLib.WithHTTPContextFunc(mcpIdentity))
	ge.Any("/mcp", gin.WrapH(streamable))
	zlog.Info("mcp catalog mounted at /mcp")
}

func mcpIdentity(ctx context.Context, r *http.Request) context.Context {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ctx
	}
	claims, err := myjwt.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil || claims == nil || claims.Uuid == "" {
		return ctx
	}
	return context.WithValue(ctx, mcpserver.ContextKeyUserID, claims.Uuid)
}
