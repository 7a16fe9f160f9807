package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/service"
)

// fakeClient scripts a sequence of Generate outcomes.
type fakeClient struct {
	errs   []error
	result Explanation
	calls  int
}

func (f *fakeClient) Generate(_ context.Context, _ Context) (Explanation, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return Explanation{}, f.errs[idx]
	}
	return f.result, nil
}

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestServiceGenerateRetriesTransientFailures(t *testing.T) {
	client := &fakeClient{
		errs: []error{
			&common.RetryableError{Err: errors.New("503"), Retryable: true},
			&common.RetryableError{Err: errors.New("503"), Retryable: true},
		},
		result: Explanation{Explanation: "Amounts match.", Confidence: 80},
	}
	svc := NewService(client, fastRetry())

	got, err := svc.Generate(context.Background(), Context{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Explanation != "Amounts match." {
		t.Errorf("Explanation = %q", got.Explanation)
	}
	if client.calls != 3 {
		t.Errorf("Generate() made %d attempts, want 3", client.calls)
	}
}

func TestServiceGenerateStopsOnNonRetryable(t *testing.T) {
	client := &fakeClient{
		errs: []error{
			&common.RetryableError{Err: errors.New("401"), Retryable: false},
		},
	}
	svc := NewService(client, fastRetry())

	_, err := svc.Generate(context.Background(), Context{})
	if err == nil {
		t.Fatal("Generate() expected error")
	}
	if client.calls != 1 {
		t.Errorf("Generate() made %d attempts, want 1 for a non-retryable failure", client.calls)
	}
}

func TestServiceGenerateExhaustsAttempts(t *testing.T) {
	transient := &common.RetryableError{Err: errors.New("503"), Retryable: true}
	client := &fakeClient{errs: []error{transient, transient, transient}}
	svc := NewService(client, fastRetry())

	_, err := svc.Generate(context.Background(), Context{})
	if !errors.Is(err, common.ErrMaxRetries) {
		t.Errorf("Generate() error = %v, want ErrMaxRetries", err)
	}
	if client.calls != 3 {
		t.Errorf("Generate() made %d attempts, want 3", client.calls)
	}
}

func TestServiceGenerateDisabled(t *testing.T) {
	var nilService *Service
	if _, err := nilService.Generate(context.Background(), Context{}); !errors.Is(err, common.ErrExplainerDisabled) {
		t.Errorf("Generate() on nil service error = %v, want ErrExplainerDisabled", err)
	}

	svc := NewService(nil, fastRetry())
	if _, err := svc.Generate(context.Background(), Context{}); !errors.Is(err, common.ErrExplainerDisabled) {
		t.Errorf("Generate() with nil client error = %v, want ErrExplainerDisabled", err)
	}
}
