// File: internal/apitesting/mock.go
package apitesting

import (
	"context"
	"net/http"
	"time"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

// MaxMockDelay caps the configured response delay of a mock.
const MaxMockDelay = 30 * time.Second

// WriteMock serves a canned mock response after its configured delay. It
// returns the context error, without writing anything, when the client goes
// away during the delay.
func WriteMock(ctx context.Context, w http.ResponseWriter, m *schemas.APIMock) error {
	if d := time.Duration(m.ResponseDelayMS) * time.Millisecond; d > 0 {
		t := time.NewTimer(min(d, MaxMockDelay))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	for k, v := range m.ResponseHeaders {
		w.Header().Set(k, v)
	}
	body := m.ResponseBody.String
	if w.Header().Get("Content-Type") == "" {
		if m.ResponseBody.Valid && jsonAPI.Valid([]byte(body)) {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
	}
	status := m.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if m.ResponseBody.Valid {
		_, err := w.Write([]byte(body))
		return err
	}
	return nil
}
