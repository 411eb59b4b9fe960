package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	profilestore "github.com/devilx291/social-loan-ledger-82/modules/profile-store"
	verificationgateway "github.com/devilx291/social-loan-ledger-82/modules/verification-gateway"
)

// ErrInjected is the default injected failure.
var ErrInjected = errors.New("injected failure")

// FlakyStore wraps a store and fails the next N writes or reads on demand.
type FlakyStore struct {
	profilestore.Store

	failUpdates atomic.Int32
	failReads   atomic.Int32
	updates     atomic.Int32

	mu      sync.Mutex
	hold    chan struct{}
	entered chan struct{}
}

// NewFlakyStore wraps store.
func NewFlakyStore(store profilestore.Store) *FlakyStore {
	return &FlakyStore{Store: store}
}

// FailUpdates makes the next n Update calls fail with ErrInjected.
func (s *FlakyStore) FailUpdates(n int) { s.failUpdates.Store(int32(n)) }

// FailReads makes the next n Read calls fail with ErrInjected.
func (s *FlakyStore) FailReads(n int) { s.failReads.Store(int32(n)) }

// Updates returns the number of Update calls, failed ones included.
func (s *FlakyStore) Updates() int { return int(s.updates.Load()) }

// HoldUpdates blocks every following Update until release is called.
// entered is signalled once per Update that started waiting.
func (s *FlakyStore) HoldUpdates() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold := make(chan struct{})
	s.hold = hold
	s.entered = make(chan struct{}, 16)
	var once sync.Once
	return s.entered, func() {
		once.Do(func() {
			s.mu.Lock()
			s.hold = nil
			s.mu.Unlock()
			close(hold)
		})
	}
}

// Read implements profilestore.Store.
func (s *FlakyStore) Read(ctx context.Context, subjectID string) (profilestore.Profile, error) {
	if s.failReads.Add(-1) >= 0 {
		return profilestore.Profile{}, ErrInjected
	}
	return s.Store.Read(ctx, subjectID)
}

// Update implements profilestore.Store.
func (s *FlakyStore) Update(ctx context.Context, subjectID string, u profilestore.Update) error {
	s.updates.Add(1)

	s.mu.Lock()
	hold, entered := s.hold, s.entered
	s.mu.Unlock()
	if hold != nil {
		entered <- struct{}{}
		<-hold
	}

	if s.failUpdates.Add(-1) >= 0 {
		return ErrInjected
	}
	return s.Store.Update(ctx, subjectID, u)
}

// GatedVerifier holds every Verify call until Release is called for it.
type GatedVerifier struct {
	// Result and Err are returned once a call is released.
	Result verificationgateway.Result
	Err    error

	mu      sync.Mutex
	waiting []chan struct{}
	calls   atomic.Int32
	entered chan struct{}
}

// NewGatedVerifier returns a verifier answering result once released.
func NewGatedVerifier(result verificationgateway.Result) *GatedVerifier {
	return &GatedVerifier{Result: result, entered: make(chan struct{}, 16)}
}

// Verify implements verificationgateway.Verifier.
func (g *GatedVerifier) Verify(ctx context.Context, req verificationgateway.Request) (verificationgateway.Result, error) {
	g.calls.Add(1)
	gate := make(chan struct{})
	g.mu.Lock()
	g.waiting = append(g.waiting, gate)
	res, err := g.Result, g.Err
	g.mu.Unlock()
	g.entered <- struct{}{}

	select {
	case <-gate:
		return res, err
	case <-ctx.Done():
		return verificationgateway.Result{}, ctx.Err()
	}
}

// Entered is signalled once per Verify call, after it started waiting.
func (g *GatedVerifier) Entered() <-chan struct{} { return g.entered }

// ReleaseAll lets every waiting call return.
func (g *GatedVerifier) ReleaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, gate := range g.waiting {
		close(gate)
	}
	g.waiting = nil
}

// Calls returns the number of Verify calls.
func (g *GatedVerifier) Calls() int { return int(g.calls.Load()) }
