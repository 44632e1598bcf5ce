package search

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gamereview/searchservice/internal/domain"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("dial timeout")
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonTransientError(t *testing.T) {
	calls := 0
	wantErr := errors.New("invalid credentials")
	err := RetryWithBackoff(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-transient error should not retry, calls = %d", calls)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{io.EOF, true},
		{io.ErrUnexpectedEOF, true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("tls handshake failure"), true},
		{errors.New("invalid api key"), false},
		{errors.New("document not found"), false},
	}
	for _, tt := range tests {
		if got := isTransientError(tt.err); got != tt.want {
			t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExponentialBlockDuration(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 2 * time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 15 * time.Minute},
		{20, 15 * time.Minute},
	}
	for _, tt := range tests {
		if got := exponentialBlockDuration(tt.failures); got != tt.want {
			t.Errorf("exponentialBlockDuration(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestProviderBlocksAfterConsecutiveFailures(t *testing.T) {
	svc := NewService(&fakeStore{}, WithProvider(&fakeProvider{name: "testprov"}))
	now := time.Now()
	failure := errors.New("upstream 500")

	for i := 0; i < providerFailureThreshold-1; i++ {
		svc.recordProviderResult("testprov", "mario", 0, failure, 10*time.Millisecond, now)
		if blocked, _, _ := svc.isProviderBlocked("testprov", now); blocked {
			t.Fatalf("blocked after %d failures, threshold is %d", i+1, providerFailureThreshold)
		}
	}

	svc.recordProviderResult("testprov", "mario", 0, failure, 10*time.Millisecond, now)
	blocked, until, lastErr := svc.isProviderBlocked("testprov", now)
	if !blocked {
		t.Fatal("expected provider to be blocked at the failure threshold")
	}
	if wantUntil := now.Add(providerBlockBase); !until.Equal(wantUntil) {
		t.Fatalf("blockedUntil = %v, want %v", until, wantUntil)
	}
	if lastErr != failure.Error() {
		t.Fatalf("lastError = %q, want %q", lastErr, failure.Error())
	}

	// The block expires on its own.
	if blocked, _, _ := svc.isProviderBlocked("testprov", now.Add(3*time.Minute)); blocked {
		t.Fatal("block should have expired")
	}
}

func TestProviderSuccessResetsCircuit(t *testing.T) {
	svc := NewService(&fakeStore{}, WithProvider(&fakeProvider{name: "testprov"}))
	now := time.Now()
	failure := errors.New("upstream 500")

	for i := 0; i < providerFailureThreshold; i++ {
		svc.recordProviderResult("testprov", "mario", 0, failure, 10*time.Millisecond, now)
	}
	if blocked, _, _ := svc.isProviderBlocked("testprov", now); !blocked {
		t.Fatal("expected block before reset")
	}

	svc.recordProviderResult("testprov", "mario", 4, nil, 10*time.Millisecond, now)
	if blocked, _, _ := svc.isProviderBlocked("testprov", now); blocked {
		t.Fatal("success should reset the circuit immediately")
	}

	diagnostics := svc.ProviderDiagnostics()
	if len(diagnostics) != 1 {
		t.Fatalf("expected one diagnostic entry, got %d", len(diagnostics))
	}
	d := diagnostics[0]
	if d.ConsecutiveFailures != 0 || d.Blocked {
		t.Fatalf("circuit not reset: %+v", d)
	}
	if d.TotalRequests != int64(providerFailureThreshold+1) || d.TotalFailures != int64(providerFailureThreshold) {
		t.Fatalf("counters wrong: %+v", d)
	}
}

func TestBlockedProviderIsSkippedDuringSearch(t *testing.T) {
	provider := &fakeProvider{name: "testprov", games: []domain.Game{{ExternalID: 9, Name: "Hollow Knight"}}}
	store := &fakeStore{}
	svc := NewService(store, WithProvider(provider))

	failure := errors.New("upstream 500")
	now := time.Now()
	for i := 0; i < providerFailureThreshold; i++ {
		svc.recordProviderResult("testprov", "hollow knight", 0, failure, time.Millisecond, now)
	}

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hollow knight", NoCache: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("blocked provider was consulted %d times", provider.callCount())
	}
	if response.Supplemented {
		t.Fatal("blocked provider must not supplement")
	}
}
