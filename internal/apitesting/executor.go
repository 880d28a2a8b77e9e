// File: internal/apitesting/executor.go
package apitesting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
	"gopkg.in/guregu/null.v3"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/config"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultMaxBodyBytes = 5 << 20
	retryInterval       = 200 * time.Millisecond
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// BenchmarkRecorder persists one timed execution.
type BenchmarkRecorder interface {
	InsertBenchmark(ctx context.Context, b schemas.Benchmark) error
}

// Executor sends API test cases and evaluates their assertions.
type Executor struct {
	transport http.RoundTripper
	client    *http.Client
	recorder  BenchmarkRecorder
	cfg       config.APITestingConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewExecutor builds an executor with its own pooled transport. recorder may
// be nil, in which case no benchmarks are written.
func NewExecutor(cfg config.APITestingConfig, recorder BenchmarkRecorder, logger *zap.Logger) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := newDecodingTransport(newTransport(logger))
	return &Executor{
		transport: rt,
		client:    &http.Client{Transport: rt},
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger.Named("apitesting"),
		now:       time.Now,
	}
}

func newTransport(logger *zap.Logger) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		// Bodies are decoded by decodingTransport so br is handled too.
		DisableCompression: true,
	}
	if err := http2.ConfigureTransport(t); err != nil {
		logger.Warn("Failed to enable HTTP/2 on API test transport", zap.Error(err))
	}
	return t
}

// newSessionClient returns a client sharing the pooled transport but with its
// own cookie jar, so cookies set by one case are sent by the next.
func (e *Executor) newSessionClient() *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil options value.
		e.logger.Warn("Failed to create cookie jar", zap.Error(err))
	}
	return &http.Client{Transport: e.transport, Jar: jar}
}

// buildRequest joins the suite base URL with the endpoint, adds query
// parameters and layers case headers over suite headers.
func (e *Executor) buildRequest(ctx context.Context, tc schemas.ExecutableCase) (*http.Request, error) {
	raw := tc.BaseURL + tc.Endpoint
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid request URL '%s'", raw)
	}
	if len(tc.QueryParams) > 0 {
		q := u.Query()
		for k, v := range tc.QueryParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(tc.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if tc.Body.Valid && tc.Body.String != "" && method != http.MethodGet && method != http.MethodHead {
		body = strings.NewReader(tc.Body.String)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range tc.SuiteHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range tc.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" && jsonAPI.Valid([]byte(tc.Body.String)) {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" && e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	return req, nil
}

func (e *Executor) timeout(tc schemas.ExecutableCase) time.Duration {
	if tc.TimeoutMS > 0 {
		return time.Duration(tc.TimeoutMS) * time.Millisecond
	}
	return e.cfg.DefaultTimeout
}

// send performs the request, retrying transport failures up to the case's
// retry count. The returned duration covers only the final attempt.
func (e *Executor) send(ctx context.Context, client *http.Client, tc schemas.ExecutableCase) (*Response, error) {
	var out *Response
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout(tc))
		defer cancel()

		req, err := e.buildRequest(attemptCtx, tc)
		if err != nil {
			return backoff.Permanent(err)
		}
		start := e.now()
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		out = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
			Duration:   e.now().Sub(start),
		}
		out.Decoded, out.IsJSON = parseBody(body)
		return nil
	}

	var policy backoff.BackOff = backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), uint64(max(tc.RetryCount, 0)))
	policy = backoff.WithContext(policy, ctx)
	notify := func(err error, wait time.Duration) {
		e.logger.Debug("Retrying API test request", zap.String("test_case_id", tc.ID), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return out, nil
}

// parseBody returns the JSON value of body, or its text when it is not JSON.
func parseBody(body []byte) (any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && jsonAPI.Valid(trimmed) {
		var v any
		if err := jsonAPI.Unmarshal(trimmed, &v); err == nil {
			return v, true
		}
	}
	return string(body), false
}

// Execute sends one test case, evaluates its assertions and records a
// benchmark. A transport failure is recorded and returned as an error.
func (e *Executor) Execute(ctx context.Context, tc schemas.ExecutableCase) (*schemas.ExecutionResult, error) {
	return e.execute(ctx, e.client, tc, "run_"+uuid.NewString())
}

func (e *Executor) execute(ctx context.Context, client *http.Client, tc schemas.ExecutableCase, runID string) (*schemas.ExecutionResult, error) {
	started := e.now()
	resp, err := e.send(ctx, client, tc)
	if err != nil {
		elapsed := e.now().Sub(started).Milliseconds()
		e.record(ctx, schemas.Benchmark{
			TestCaseID:   tc.ID,
			RunID:        runID,
			ResponseTime: elapsed,
			ErrorMsg:     null.StringFrom(err.Error()),
		})
		e.logger.Warn("API test request failed", zap.String("test_case_id", tc.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	res := &schemas.ExecutionResult{
		TestCaseID:       tc.ID,
		ResponseTime:     resp.Duration.Milliseconds(),
		StatusCode:       resp.StatusCode,
		Response:         resp.Decoded,
		Headers:          flattenHeader(resp.Header),
		AssertionResults: make([]schemas.AssertionResult, 0, len(tc.Assertions)+1),
	}
	assertions := tc.Assertions
	if tc.ExpectedStatus.Valid && !hasStatusAssertion(assertions) {
		assertions = append([]schemas.Assertion{{Type: schemas.AssertStatus, Expected: float64(tc.ExpectedStatus.Int64)}}, assertions...)
	}
	res.Success = true
	for _, a := range assertions {
		ar := Evaluate(a, resp)
		res.AssertionResults = append(res.AssertionResults, ar)
		res.Success = res.Success && ar.Passed
	}

	e.record(ctx, schemas.Benchmark{
		TestCaseID:   tc.ID,
		RunID:        runID,
		ResponseTime: res.ResponseTime,
		StatusCode:   res.StatusCode,
		Success:      res.Success,
	})
	e.logger.Debug("API test executed",
		zap.String("test_case_id", tc.ID),
		zap.Int("status", res.StatusCode),
		zap.Int64("response_time_ms", res.ResponseTime),
		zap.Bool("success", res.Success))
	return res, nil
}

func (e *Executor) record(ctx context.Context, b schemas.Benchmark) {
	if e.recorder == nil {
		return
	}
	// The request context may already be done after a timeout.
	if err := e.recorder.InsertBenchmark(context.WithoutCancel(ctx), b); err != nil {
		e.logger.Error("Failed to record benchmark", zap.String("test_case_id", b.TestCaseID), zap.Error(err))
	}
}

// ExecuteSuite runs the given cases in order with a shared cookie jar. A case
// whose request fails is reported as a failed result and the run continues.
func (e *Executor) ExecuteSuite(ctx context.Context, suiteID string, cases []schemas.ExecutableCase) (*schemas.SuiteExecution, error) {
	client := e.newSessionClient()
	runID := "run_" + uuid.NewString()
	out := &schemas.SuiteExecution{SuiteID: suiteID, Results: make([]schemas.ExecutionResult, 0, len(cases))}

	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.execute(ctx, client, tc, runID)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res = &schemas.ExecutionResult{TestCaseID: tc.ID, Error: err.Error(), AssertionResults: []schemas.AssertionResult{}}
		}
		out.Total++
		if res.Success {
			out.Passed++
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, *res)
	}
	e.logger.Info("API test suite executed",
		zap.String("suite_id", suiteID),
		zap.Int("total", out.Total),
		zap.Int("passed", out.Passed),
		zap.Int("failed", out.Failed))
	return out, nil
}

func hasStatusAssertion(as []schemas.Assertion) bool {
	for _, a := range as {
		if a.Type == schemas.AssertStatus {
			return true
		}
	}
	return false
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
