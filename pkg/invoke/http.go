package invoke

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/psantana5/crashloop/pkg/tracing"
)

// FunctionErrorHeader is the header a function emulator sets when the
// function itself failed, mirroring Lambda's response header.
const FunctionErrorHeader = "X-Amz-Function-Error"

// HTTPInvoker posts the payload to an HTTP endpoint; target is the URL.
// A 5xx status or a FunctionErrorHeader marks a function-level error.
type HTTPInvoker struct {
	httpClient *http.Client
	apiKey     string
}

// NewHTTPInvoker creates an HTTP invoker with a per-call timeout.
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPInvoker{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetTLSConfig replaces the transport's TLS settings.
func (h *HTTPInvoker) SetTLSConfig(cfg *tls.Config) {
	h.httpClient.Transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: cfg,
	}
}

// SetAPIKey sets a bearer token sent with every call.
func (h *HTTPInvoker) SetAPIKey(apiKey string) {
	h.apiKey = apiKey
}

// Invoke posts payload to target and reads the whole response.
func (h *HTTPInvoker) Invoke(ctx context.Context, target string, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	tracing.InjectHTTPHeaders(ctx, req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &Response{Payload: body, StatusCode: resp.StatusCode}
	switch {
	case resp.Header.Get(FunctionErrorHeader) != "":
		out.FunctionError = resp.Header.Get(FunctionErrorHeader)
	case resp.StatusCode >= 500:
		out.FunctionError = "Unhandled"
	case resp.StatusCode >= 400:
		// The endpoint refused the call before running the function.
		return nil, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(body))
	}
	return out, nil
}
