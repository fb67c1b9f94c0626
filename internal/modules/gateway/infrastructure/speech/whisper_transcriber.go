package speech

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"NotaLink/internal/config"
	"NotaLink/internal/modules/gateway/domain/speech"
	"NotaLink/internal/modules/session/domain/entity"

	openai "github.com/sashabaranov/go-openai"
)

// whisperTranscriber 通过 Whisper 兼容接口转写语音附件。
// 附件以 URL 引用，转写前先拉取内容。
type whisperTranscriber struct {
	client *openai.Client
	model  string
	http   *http.Client
}

func NewWhisperTranscriber(conf config.AISpeechConfig) (speech.Transcriber, error) {
	apiKey := strings.TrimSpace(conf.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("speech transcriber missing apiKey")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(conf.BaseURL); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	timeout := 60 * time.Second
	if conf.TimeoutSeconds > 0 {
		timeout = time.Duration(conf.TimeoutSeconds) * time.Second
	}

	model := strings.TrimSpace(conf.Model)
	if model == "" {
		model = openai.Whisper1
	}

	return &whisperTranscriber{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

func (t *whisperTranscriber) Transcribe(ctx context.Context, att *entity.Attachment) (string, error) {
	if att == nil || att.URL == "" {
		return "", fmt.Errorf("audio attachment has no url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch audio: status %d", resp.StatusCode)
	}

	out, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   resp.Body,
		FilePath: audioFileName(att.URL),
	})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// audioFileName 从 URL 推断文件名，多段上传需要一个带扩展名的名字
func audioFileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "." && name != "/" && strings.Contains(name, ".") {
			return name
		}
	}
	return "audio.ogg"
}
