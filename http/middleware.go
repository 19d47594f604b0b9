// Package http provides net/http middleware that bills requests against the
// credit ledger: the daily free quota is spent first, then credits. Handlers
// that call slow external workers should use Reserve/Confirm/Cancel around
// the work themselves; this middleware debits up front and suits short
// operations with a known cost.
package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/saoki0913/career-compass-sub001/service"
)

// IdentityExtractor extracts the billing identity from the request
type IdentityExtractor func(r *http.Request) (string, error)

// CostExtractor extracts the credit cost of the request
type CostExtractor func(r *http.Request) int64

// KindExtractor extracts the usage tag logged with the debit
type KindExtractor func(r *http.Request) string

// ReferenceExtractor extracts the business-object reference for the debit
type ReferenceExtractor func(r *http.Request) string

// Ledger is the slice of the credit service the middleware uses.
type Ledger interface {
	Info(ctx context.Context, accountID string) (*service.Info, error)
	Consume(ctx context.Context, accountID string, amount int64, kind, referenceID string) (*service.ConsumeResult, error)
	DailyIncrement(ctx context.Context, identityKey string) error
}

// MiddlewareConfig configures how the billing middleware behaves
type MiddlewareConfig struct {
	// Required configurations
	GetIdentity IdentityExtractor

	// Optional configurations with defaults
	GetCost      CostExtractor // Defaults to 1 credit per request
	GetKind      KindExtractor // Defaults to the URL path
	GetReference ReferenceExtractor

	// Whether a request with no free quota and insufficient balance is
	// rejected with 402 or let through unbilled.
	EnforceBilling bool
}

// DefaultMiddlewareConfig returns a configuration with sensible defaults
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		GetIdentity: func(r *http.Request) (string, error) {
			id := r.Header.Get("X-Account-ID")
			if id == "" {
				return "", errors.New("no account ID provided")
			}
			return id, nil
		},
		GetCost: func(r *http.Request) int64 {
			return 1
		},
		GetKind: func(r *http.Request) string {
			return r.URL.Path
		},
		GetReference: func(r *http.Request) string {
			return ""
		},
		EnforceBilling: true,
	}
}

// CreditMiddleware creates middleware that bills each request. Free daily
// quota is consumed before paid credits; an insufficient balance answers
// 402 so clients can distinguish "buy more" from "try again" (500).
func CreditMiddleware(svc Ledger, cfg MiddlewareConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity, err := cfg.GetIdentity(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			info, err := svc.Info(ctx, identity)
			if err != nil && !errors.Is(err, service.ErrAccountNotFound) {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if info != nil {
				w.Header().Set("X-Credits-Balance", fmt.Sprintf("%d", info.Balance))
				w.Header().Set("X-Credits-Daily-Remaining", fmt.Sprintf("%d", info.DailyFreeRemaining))

				// Free tier first: serve, then count on success only.
				if info.DailyFreeRemaining > 0 {
					rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
					next.ServeHTTP(rec, r)
					if rec.status < http.StatusBadRequest {
						if err := svc.DailyIncrement(ctx, identity); err != nil {
							log.Printf("recording free operation: %v", err)
						}
					}
					return
				}
			}

			cost := cfg.GetCost(r)
			result, err := svc.Consume(ctx, identity, cost, cfg.GetKind(r), cfg.GetReference(r))
			if err != nil {
				if errors.Is(err, service.ErrAccountNotFound) {
					if cfg.EnforceBilling {
						http.Error(w, "no credit account", http.StatusPaymentRequired)
						return
					}
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("X-Credits-Balance", fmt.Sprintf("%d", result.Balance))
			if !result.OK && cfg.EnforceBilling {
				http.Error(w, "insufficient credits", http.StatusPaymentRequired)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the handler's status code so free-quota counting
// can skip failed operations.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying writer so streaming handlers keep
// working behind the free-quota path.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
