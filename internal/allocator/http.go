package allocator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempmail/web/internal/domain"
)

const generatePath = "/api/generate-email"

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 4 << 10

// HTTPClient 通过 HTTP 调用外部分配服务
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// Option 配置 HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithLogger 设置日志
func WithLogger(log *zap.Logger) Option {
	return func(c *HTTPClient) {
		c.log = log
	}
}

// NewHTTPClient 创建分配服务客户端
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateResponse struct {
	TempEmail *domain.TemporaryAddress `json:"tempEmail"`
}

// Allocate 调用 POST {baseURL}/api/generate-email
//
// 非 2xx 状态码、无法解析的响应体以及缺少必填字段的地址都视为分配失败，不做重试。
func (c *HTTPClient) Allocate(ctx context.Context) (*domain.TemporaryAddress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrAllocation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrAllocation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warn("allocation service rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("%w: unexpected status %d", ErrAllocation, resp.StatusCode)
	}

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrAllocation, err)
	}
	if payload.TempEmail == nil {
		return nil, fmt.Errorf("%w: response has no tempEmail", ErrAllocation)
	}
	if err := payload.TempEmail.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	c.log.Debug("address allocated",
		zap.String("address_id", payload.TempEmail.ID),
		zap.Time("expires_at", payload.TempEmail.ExpiresAt),
	)
	return payload.TempEmail, nil
}
