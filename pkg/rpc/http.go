package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPTransport posts each call as a JSON envelope to the backend's
// /api/v1/rpc endpoint.
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the backend at baseURL
// (e.g. http://localhost:8080). A zero timeout means no timeout.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		endpoint:   strings.TrimRight(baseURL, "/") + "/api/v1/rpc",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Call(ctx context.Context, method string, params, result any) error {
	raw, err := encodeParams(params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(&Request{ID: uuid.NewString(), Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := t.httpClient.Do(req)
	if err != nil {
		return &Error{Code: CodeTransport, Message: err.Error()}
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &Error{Code: CodeTransport, Message: err.Error()}
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return &Error{
			Code:    CodeTransport,
			Message: fmt.Sprintf("unexpected response (status %d): %s", httpResp.StatusCode, strings.TrimSpace(string(data))),
		}
	}
	return decodeResult(&resp, result)
}

func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
