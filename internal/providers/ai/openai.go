package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/genpire/genpire/internal/config"
)

// openAIProvider talks to an OpenAI-compatible images endpoint.
type openAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	log     *zap.Logger
}

func NewOpenAIProvider(cfg config.Config, log *zap.Logger) (Provider, error) {
	aiCfg := cfg.AI
	if strings.TrimSpace(aiCfg.APIKey) == "" {
		return nil, errors.New("ai api key is required")
	}
	timeout := aiCfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAIProvider{
		baseURL: strings.TrimRight(aiCfg.BaseURL, "/"),
		apiKey:  aiCfg.APIKey,
		model:   aiCfg.Model,
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("providers.ai"),
	}, nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *openAIProvider) GenerateImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}
	if len(req.ReferenceImages) > 0 {
		// The images API takes references inline; the model is instructed to
		// treat them as conditioning inputs.
		prompt = fmt.Sprintf("%s\n\nReference images: %s", prompt, strings.Join(req.ReferenceImages, ", "))
	}

	body, err := json.Marshal(imageRequest{
		Model:  p.model,
		Prompt: prompt,
		N:      1,
		Size:   req.Size,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image generation request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read image generation response: %w", err)
	}

	var parsed imageResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode image generation response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "image generation failed"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		p.log.Warn("image provider rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, fmt.Errorf("image provider status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return nil, errors.New("image provider returned no image")
	}

	return &GenerateResult{URL: parsed.Data[0].URL}, nil
}
