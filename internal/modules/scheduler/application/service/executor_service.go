package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	capabilityService "NotaLink/internal/modules/capability/application/service"
	gatewayService "NotaLink/internal/modules/gateway/application/service"
	"NotaLink/internal/modules/orchestrator/domain/responder"
	"NotaLink/internal/modules/scheduler/domain/entity"
	sessionService "NotaLink/internal/modules/session/application/service"
	sessionEntity "NotaLink/internal/modules/session/domain/entity"
	"NotaLink/pkg/xerr"
	"NotaLink/pkg/zlog"

	"go.uber.org/zap"
)

// webhook 动作使用的签名凭证名与瞬时重试参数
const (
	webhookSigningCredential = "webhook_signing"
	webhookRetries           = 2
	webhookBackoffBase       = 500 * time.Millisecond
	commandTimeout           = 30 * time.Second
)

const aiPromptSystem = "You are NotaLink running a scheduled task for the user. " +
	"Produce the requested content directly, without preamble, in the language of the prompt."

type ExecutorService interface {
	// Execute 执行一次任务动作并返回结果摘要。失败返回错误，
	// 执行台账由调用方负责写入。
	Execute(ctx context.Context, task *entity.ScheduledTask) (string, error)
}

type executorServiceImpl struct {
	sessions sessionService.SessionService
	gateway  gatewayService.GatewayService
	resp     responder.Responder // ai_prompt 动作使用，可为 nil
	creds    capabilityService.CredentialService

	commandAllowList []string
	webhookTimeout   time.Duration
	client           *http.Client
}

func NewExecutorService(
	sessions sessionService.SessionService,
	gateway gatewayService.GatewayService,
	resp responder.Responder,
	creds capabilityService.CredentialService,
	commandAllowList []string,
	webhookTimeoutSecs int,
) ExecutorService {
	timeout := time.Duration(webhookTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &executorServiceImpl{
		sessions:         sessions,
		gateway:          gateway,
		resp:             resp,
		creds:            creds,
		commandAllowList: commandAllowList,
		webhookTimeout:   timeout,
		client:           &http.Client{Timeout: timeout},
	}
}

func (s *executorServiceImpl) Execute(ctx context.Context, task *entity.ScheduledTask) (string, error) {
	if task == nil {
		return "", xerr.ErrParam
	}

	var payload entity.ActionPayloadBody
	if task.ActionPayload != "" {
		if err := json.Unmarshal([]byte(task.ActionPayload), &payload); err != nil {
			return "", fmt.Errorf("decode action payload: %w", err)
		}
	}

	switch task.ActionType {
	case entity.ActionSendMessage:
		return s.runSendMessage(ctx, task, payload)
	case entity.ActionAIPrompt:
		return s.runAIPrompt(ctx, task, payload)
	case entity.ActionWebhook:
		return s.runWebhook(ctx, task, payload)
	case entity.ActionCommand:
		return s.runCommand(ctx, task, payload)
	default:
		return "", fmt.Errorf("unknown action type %d", task.ActionType)
	}
}

// resolveSession 投递目标：属主最近的存活会话，找不到则按任务的
// 来源通道兜底开一个
func (s *executorServiceImpl) resolveSession(ctx context.Context, task *entity.ScheduledTask) (*sessionEntity.Session, error) {
	sess, err := s.sessions.GetLatestByUser(ctx, task.UserID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, xerr.ErrSessionNotFound) {
		return nil, err
	}
	if task.Channel == "" {
		return nil, xerr.ErrSessionNotFound
	}
	sess, _, err = s.sessions.GetOrCreate(ctx, task.UserID, task.Channel)
	return sess, err
}

func (s *executorServiceImpl) runSendMessage(ctx context.Context, task *entity.ScheduledTask, payload entity.ActionPayloadBody) (string, error) {
	text := payload.Message
	if text == "" {
		text = task.Title
	}
	sess, err := s.resolveSession(ctx, task)
	if err != nil {
		return "", err
	}
	if err := s.gateway.Send(ctx, sess, text); err != nil {
		return "", err
	}
	return "message delivered: " + truncateTitle(text), nil
}

func (s *executorServiceImpl) runAIPrompt(ctx context.Context, task *entity.ScheduledTask, payload entity.ActionPayloadBody) (string, error) {
	if s.resp == nil {
		return "", errors.New("responder not configured")
	}
	prompt := payload.Prompt
	if prompt == "" {
		prompt = task.Title
	}

	res, err := s.resp.Respond(ctx, &responder.Request{
		System: aiPromptSystem,
		Messages: []responder.Message{
			{Role: responder.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("responder: %w", err)
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return "", errors.New("responder returned empty text")
	}

	sess, err := s.resolveSession(ctx, task)
	if err != nil {
		return "", err
	}
	if err := s.gateway.Send(ctx, sess, res.Text); err != nil {
		return "", err
	}
	return "ai reply delivered: " + truncateTitle(res.Text), nil
}

func (s *executorServiceImpl) runWebhook(ctx context.Context, task *entity.ScheduledTask, payload entity.ActionPayloadBody) (string, error) {
	if payload.URL == "" {
		return "", errors.New("webhook url missing")
	}
	method := strings.ToUpper(payload.Method)
	if method == "" {
		method = http.MethodPost
	}

	signature := ""
	if s.creds != nil {
		if secret, err := s.creds.Reveal(ctx, task.UserID, webhookSigningCredential); err == nil && secret != "" {
			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write([]byte(payload.Body))
			signature = "sha256=" + hex.EncodeToString(mac.Sum(nil))
		}
	}

	var lastErr error
	for attempt := 0; attempt <= webhookRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(webhookBackoffBase << (attempt - 1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		status, err := s.callWebhook(ctx, method, payload.URL, payload.Body, signature)
		if err == nil && status < 300 {
			return fmt.Sprintf("webhook %s %s: %d", method, payload.URL, status), nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("webhook status %d", status)
			// 4xx 不是瞬时故障，重试无意义
			if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
				return "", lastErr
			}
		}
		zlog.Warn("webhook attempt failed",
			zap.Int64("task_id", task.ID), zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	return "", lastErr
}

func (s *executorServiceImpl) callWebhook(ctx context.Context, method, url, body, signature string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return 0, err
	}
	if body != "" {
		if json.Valid([]byte(body)) {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "text/plain")
		}
	}
	if signature != "" {
		req.Header.Set("X-Signature-256", signature)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// runCommand 默认拒绝，只有白名单中的程序可以执行
func (s *executorServiceImpl) runCommand(ctx context.Context, task *entity.ScheduledTask, payload entity.ActionPayloadBody) (string, error) {
	fields := strings.Fields(payload.Command)
	if len(fields) == 0 {
		return "", errors.New("command missing")
	}
	if !s.commandAllowed(fields[0]) {
		return "", fmt.Errorf("command %q not on allow list", fields[0])
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	out, err := cmd.CombinedOutput()
	summary := strings.TrimSpace(string(out))
	if len(summary) > 500 {
		summary = summary[:500]
	}
	if err != nil {
		return "", fmt.Errorf("command failed: %w: %s", err, summary)
	}
	if summary == "" {
		summary = "command completed"
	}
	return summary, nil
}

func (s *executorServiceImpl) commandAllowed(binary string) bool {
	for _, allowed := range s.commandAllowList {
		if allowed == binary {
			return true
		}
	}
	return false
}
