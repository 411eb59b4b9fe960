package verificationgateway

import (
	"context"
	"sync"
	"time"

	"github.com/devilx291/social-loan-ledger-82/internal/metrics"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

// MockVerifiedMessage is the message of the default mock decision.
const MockVerifiedMessage = "Identity verified successfully"

// Mock is an in-process gateway with a scripted decision.
//
// The zero value verifies every request with MockVerifiedMessage.
type Mock struct {
	// Delay simulates gateway latency. The wait honours ctx.
	Delay time.Duration
	// Decide, when set, replaces the default decision.
	Decide func(Request) (Result, error)

	mu       sync.Mutex
	requests []Request
}

// NewMock returns a mock that always verifies after delay.
func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay}
}

// Verify implements Verifier.
func (m *Mock) Verify(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	decide := m.Decide
	m.mu.Unlock()

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			metrics.RecordVerification("transport_failure")
			return Result{}, kycerr.New(kycerr.VerificationTransportFailure, "verify", ctx.Err())
		}
	}

	if decide == nil {
		metrics.RecordVerification("verified")
		return Result{Verified: true, Message: MockVerifiedMessage}, nil
	}

	res, err := decide(req)
	switch {
	case err != nil:
		metrics.RecordVerification("transport_failure")
		if kycerr.KindOf(err) == kycerr.KindUnknown {
			err = kycerr.New(kycerr.VerificationTransportFailure, "verify", err)
		}
		return Result{}, err
	case res.Verified:
		metrics.RecordVerification("verified")
	default:
		metrics.RecordVerification("rejected")
	}
	return res, nil
}

// Requests returns every request received so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reject returns a decision function rejecting every request with message.
func Reject(message string) func(Request) (Result, error) {
	return func(Request) (Result, error) {
		return Result{Verified: false, Message: message}, nil
	}
}
