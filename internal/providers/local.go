package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalProvider talks to an on-host model server (e.g. an Ollama-style HTTP
// endpoint on localhost). It never leaves the machine, so IsLocal is true
// and EstimatedCost is always zero — the Router's local-first rule and
// cost-ranking rule both favor it.
type LocalProvider struct {
	baseURL      string
	defaultModel string
	client       *http.Client
	retryConfig  RetryConfig
}

func NewLocalProvider(baseURL, defaultModel string) *LocalProvider {
	return &LocalProvider{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 300 * time.Second},
		retryConfig:  DefaultRetryConfig(),
	}
}

func (p *LocalProvider) Name() string               { return "local" }
func (p *LocalProvider) DefaultModel() string        { return p.defaultModel }
func (p *LocalProvider) IsLocal() bool               { return true }
func (p *LocalProvider) EstimatedCost(int) float64 { return 0 }

func (p *LocalProvider) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *LocalProvider) Generate(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []map[string]string
	for _, msg := range req.Messages {
		messages = append(messages, map[string]string{"role": msg.Role, "content": msg.Content})
	}
	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request: %v", ErrInvalidRequest, err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: create request: %v", ErrInvalidRequest, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return nil, classifyHTTPError(resp.StatusCode, string(respBody))
		}

		var decoded struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", ErrParseError, err)
		}
		return &ChatResponse{Content: decoded.Message.Content}, nil
	})
}
