// File: internal/testdata/upstream.go
package testdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const generatePath = "/assistant/generate-test-data"

// ErrNoUpstream is returned when no AI service URL is configured.
var ErrNoUpstream = errors.New("ai service not configured")

// listKeys are the response fields that may carry the generated records, in lookup order.
var listKeys = []string{"data", "records", "users", "result"}

// UpstreamClient asks the AI service to generate records.
type UpstreamClient struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	maxRetryTime time.Duration
	logger       *zap.Logger
}

// NewUpstreamClient builds a client from config. It returns nil when no URL is set.
func NewUpstreamClient(cfg config.TestDataConfig, logger *zap.Logger) *UpstreamClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.AIServiceURL), "/")
	if base == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UpstreamClient{
		baseURL:      base,
		token:        bearer(cfg.AIServiceToken),
		httpClient:   &http.Client{Timeout: timeout},
		maxRetryTime: cfg.MaxRetryTime,
		logger:       logger.Named("ai_service"),
	}
}

// bearer normalizes a token so it carries exactly one "Bearer " prefix.
func bearer(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return "Bearer " + token
}

type upstreamRequest struct {
	DataType string   `json:"dataType"`
	Count    int      `json:"count"`
	Schema   any      `json:"schema,omitempty"`
	Options  *Options `json:"options,omitempty"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ai service returned status %d: %s", e.code, e.body)
}

// Generate posts the request and extracts the record list. 4xx responses are not retried.
func (c *UpstreamClient) Generate(ctx context.Context, req Request) ([]any, error) {
	if c == nil {
		return nil, ErrNoUpstream
	}
	payload, err := json.Marshal(upstreamRequest{
		DataType: string(req.DataType),
		Count:    req.Count,
		Schema:   req.Schema,
		Options:  req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ai service request: %w", err)
	}

	var body []byte
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			httpReq.Header.Set("Authorization", c.token)
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			serr := &statusError{code: resp.StatusCode, body: truncate(string(data), 200)}
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(serr)
			}
			return serr
		}
		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = c.maxRetryTime
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("AI service call failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	var b backoff.BackOff = policy
	if c.maxRetryTime <= 0 {
		b = &backoff.StopBackOff{}
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return extractRecords(body)
}

// extractRecords accepts a bare array or an object carrying the list under a known key.
func extractRecords(body []byte) ([]any, error) {
	body = unwrapJSON(body)
	if !gjson.ValidBytes(body) {
		return nil, errors.New("ai service returned invalid JSON")
	}
	root := gjson.ParseBytes(body)
	list := root
	if !root.IsArray() {
		list = gjson.Result{}
		for _, key := range listKeys {
			if r := root.Get(key); r.IsArray() {
				list = r
				break
			}
		}
	}
	if !list.IsArray() {
		return nil, errors.New("ai service response carries no record list")
	}
	records, _ := list.Value().([]any)
	return records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Service generates data through the AI service when available and locally otherwise.
type Service struct {
	generator *Generator
	upstream  *UpstreamClient
	logger    *zap.Logger
}

// NewService wires the local generator and the optional upstream client.
func NewService(generator *Generator, upstream *UpstreamClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{generator: generator, upstream: upstream, logger: logger.Named("testdata")}
}

// Generate runs the local generator only.
func (s *Service) Generate(req Request) (*Result, error) {
	return s.generator.Generate(req)
}

// GenerateWithFallback tries the AI service first. An error or an empty list
// falls back to the local generator and is reported as SourceLocalFallback.
func (s *Service) GenerateWithFallback(ctx context.Context, req Request) (*Result, error) {
	dt, err := ParseType(string(req.DataType))
	if err != nil {
		return nil, err
	}
	req.DataType = dt
	req.Count = ClampCount(req.Count, s.generator.MaxCount())

	if s.upstream == nil {
		return s.generator.Generate(req)
	}
	start := time.Now()
	records, err := s.upstream.Generate(ctx, req)
	if err == nil && len(records) > 0 {
		if len(records) > req.Count {
			records = records[:req.Count]
		}
		return &Result{
			Data: records,
			Metadata: Metadata{
				GeneratedCount: len(records),
				DataType:       dt,
				ProcessingTime: time.Since(start).Milliseconds(),
				Source:         SourceAIService,
			},
		}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logger.Warn("Falling back to local test data generation", zap.Error(err), zap.Int("upstream_records", len(records)))
	res, lerr := s.generator.Generate(req)
	if lerr != nil {
		return nil, lerr
	}
	res.Metadata.Source = SourceLocalFallback
	return res, nil
}
