package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider invokes tools hosted by an external tool service.
// The service exposes GET /tools and POST /tools/{name}/invoke.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for a remote tool service.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ensure HTTPProvider implements Provider.
var _ Provider = (*HTTPProvider)(nil)

type invokeResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ListTools fetches the remote tool catalog.
func (p *HTTPProvider) ListTools(ctx context.Context) ([]Definition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool service error [%d]: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Tools []Definition `json:"tools"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool list: %w", err)
	}
	return result.Tools, nil
}

// Invoke calls one remote tool by name.
func (p *HTTPProvider) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]json.RawMessage{"args": args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tools/"+name+"/invoke", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &InvocationError{ToolName: name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InvocationError{ToolName: name, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &InvocationError{ToolName: name, Err: fmt.Errorf("tool service error [%d]: %s", resp.StatusCode, string(body))}
	}

	var result invokeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &InvocationError{ToolName: name, Err: fmt.Errorf("failed to unmarshal result: %w", err)}
	}
	if result.Error != nil {
		return nil, &InvocationError{ToolName: name, Err: fmt.Errorf("%s: %s", result.Error.Code, result.Error.Message)}
	}
	return result.Result, nil
}
