package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	creditshttp "github.com/saoki0913/career-compass-sub001/http"
	"github.com/saoki0913/career-compass-sub001/service"
)

// fakeLedger scripts the service responses and records the calls.
type fakeLedger struct {
	info       *service.Info
	infoErr    error
	consume    *service.ConsumeResult
	consumeErr error

	consumed   int
	increments int
}

func (f *fakeLedger) Info(_ context.Context, _ string) (*service.Info, error) {
	return f.info, f.infoErr
}

func (f *fakeLedger) Consume(_ context.Context, _ string, _ int64, _, _ string) (*service.ConsumeResult, error) {
	f.consumed++
	return f.consume, f.consumeErr
}

func (f *fakeLedger) DailyIncrement(_ context.Context, _ string) error {
	f.increments++
	return nil
}

func serve(t *testing.T, ledger *fakeLedger, handler http.HandlerFunc, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	mw := creditshttp.CreditMiddleware(ledger, creditshttp.DefaultMiddlewareConfig())

	req := httptest.NewRequest(http.MethodPost, "/ai/review", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)
	return rec
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestMiddleware_MissingIdentity(t *testing.T) {
	ledger := &fakeLedger{}
	rec := serve(t, ledger, okHandler, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, ledger.consumed)
}

func TestMiddleware_FreeQuotaServesWithoutDebit(t *testing.T) {
	ledger := &fakeLedger{
		info: &service.Info{
			Snapshot:           service.Snapshot{Balance: 10},
			DailyFreeLimit:     3,
			DailyFreeRemaining: 2,
		},
	}
	rec := serve(t, ledger, okHandler, map[string]string{"X-Account-ID": "acct-1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-Credits-Balance"))
	assert.Equal(t, "2", rec.Header().Get("X-Credits-Daily-Remaining"))
	assert.Equal(t, 1, ledger.increments, "free operation counted on success")
	assert.Zero(t, ledger.consumed, "no debit while free quota remains")
}

func TestMiddleware_FreeQuotaNotCountedOnFailure(t *testing.T) {
	ledger := &fakeLedger{
		info: &service.Info{DailyFreeRemaining: 1},
	}
	failing := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	rec := serve(t, ledger, failing, map[string]string{"X-Account-ID": "acct-1"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Zero(t, ledger.increments, "failed operation must stay free")
}

func TestMiddleware_FreeQuotaPreservesFlush(t *testing.T) {
	ledger := &fakeLedger{
		info: &service.Info{DailyFreeRemaining: 1},
	}
	streaming := func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "wrapped writer must stay flushable")
		w.WriteHeader(http.StatusOK)
		f.Flush()
	}
	rec := serve(t, ledger, streaming, map[string]string{"X-Account-ID": "acct-1"})

	assert.True(t, rec.Flushed, "flush must reach the underlying writer")
}

func TestMiddleware_DebitsWhenQuotaExhausted(t *testing.T) {
	ledger := &fakeLedger{
		info:    &service.Info{Snapshot: service.Snapshot{Balance: 10}},
		consume: &service.ConsumeResult{OK: true, Balance: 9},
	}
	rec := serve(t, ledger, okHandler, map[string]string{"X-Account-ID": "acct-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ledger.consumed)
	assert.Equal(t, "9", rec.Header().Get("X-Credits-Balance"))
	assert.Zero(t, ledger.increments)
}

func TestMiddleware_InsufficientBalanceIs402(t *testing.T) {
	ledger := &fakeLedger{
		info:    &service.Info{Snapshot: service.Snapshot{Balance: 0}},
		consume: &service.ConsumeResult{OK: false, Balance: 0},
	}
	called := false
	handler := func(w http.ResponseWriter, _ *http.Request) { called = true }
	rec := serve(t, ledger, handler, map[string]string{"X-Account-ID": "acct-1"})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.False(t, called, "handler must not run unbilled")
}

func TestMiddleware_UnknownAccountIs402(t *testing.T) {
	ledger := &fakeLedger{
		infoErr:    service.ErrAccountNotFound,
		consumeErr: service.ErrAccountNotFound,
	}
	rec := serve(t, ledger, okHandler, map[string]string{"X-Account-ID": "acct-1"})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestMiddleware_StoreFailureIs500(t *testing.T) {
	ledger := &fakeLedger{
		infoErr: assert.AnError,
	}
	rec := serve(t, ledger, okHandler, map[string]string{"X-Account-ID": "acct-1"})

	// Insufficient balance prompts an upgrade; an unavailable store prompts
	// a retry. The two must stay distinguishable.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
