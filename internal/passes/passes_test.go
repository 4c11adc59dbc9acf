package passes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fablecast/dramatis/internal/llama"
)

type fakeCall struct {
	system      string
	user        string
	maxTokens   int
	temperature float64
}

// scriptedBackend returns canned responses and errors in order, recording
// every call it sees.
type scriptedBackend struct {
	responses []string
	errs      []error
	calls     []fakeCall
}

func (b *scriptedBackend) Generate(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	i := len(b.calls)
	b.calls = append(b.calls, fakeCall{system, user, maxTokens, temperature})
	var err error
	if i < len(b.errs) {
		err = b.errs[i]
	}
	var out string
	if i < len(b.responses) {
		out = b.responses[i]
	}
	return out, err
}

func quickConfig() Config {
	return Config{MaxRetries: 2, TokenReductionOnRetry: 512, Timeout: time.Second}
}

func TestRunner_ShrinksInputOnTokenLimit(t *testing.T) {
	text := strings.Repeat("The road went on and on. ", 600)
	b := &scriptedBackend{
		responses: []string{"", `{"characters": ["Mira"]}`},
		errs:      []error{fmt.Errorf("completion status 500: %w", llama.ErrTokenLimit), nil},
	}

	names, err := NewRunner(b, quickConfig()).Names(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 1 || names[0] != "Mira" {
		t.Fatalf("unexpected names: %v", names)
	}
	if len(b.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(b.calls))
	}
	if len(b.calls[1].user) >= len(b.calls[0].user) {
		t.Errorf("retry prompt did not shrink: %d then %d chars", len(b.calls[0].user), len(b.calls[1].user))
	}
}

func TestRunner_HalvesWhenNoReductionConfigured(t *testing.T) {
	text := strings.Repeat("word ", 4000)
	limitErr := fmt.Errorf("completion status 400: %w", llama.ErrTokenLimit)
	b := &scriptedBackend{errs: []error{limitErr, limitErr, limitErr}}

	cfg := quickConfig()
	cfg.TokenReductionOnRetry = 0
	_, err := NewRunner(b, cfg).Names(context.Background(), text)
	if err == nil {
		t.Fatal("expected failure after exhausted retries")
	}
	if !errors.Is(err, llama.ErrTokenLimit) {
		t.Fatalf("expected wrapped token limit error, got %v", err)
	}
	if len(b.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(b.calls))
	}
	for i := 1; i < len(b.calls); i++ {
		if len(b.calls[i].user) >= len(b.calls[i-1].user) {
			t.Errorf("call %d prompt did not shrink: %d then %d chars", i, len(b.calls[i-1].user), len(b.calls[i].user))
		}
	}
}

func TestRunner_RetriesPlainFailuresAtFullSize(t *testing.T) {
	text := strings.Repeat("steady ", 2000)
	b := &scriptedBackend{
		responses: []string{"", `{"characters": []}`},
		errs:      []error{errors.New("connection reset"), nil},
	}

	names, err := NewRunner(b, quickConfig()).Names(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty list, got %v", names)
	}
	if len(b.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(b.calls))
	}
	if len(b.calls[0].user) != len(b.calls[1].user) {
		t.Errorf("plain retry changed prompt size: %d then %d", len(b.calls[0].user), len(b.calls[1].user))
	}
}

func TestRunner_SingleAttemptWithoutRetries(t *testing.T) {
	b := &scriptedBackend{errs: []error{errors.New("down")}}
	cfg := quickConfig()
	cfg.MaxRetries = 0

	if _, err := NewRunner(b, cfg).Names(context.Background(), "text"); err == nil {
		t.Fatal("expected error")
	}
	if len(b.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(b.calls))
	}
}

func TestRunner_AttemptTimeout(t *testing.T) {
	blocker := backendFunc(func(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	cfg := Config{MaxRetries: 0, Timeout: 10 * time.Millisecond}

	_, err := NewRunner(blocker, cfg).Names(context.Background(), "text")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRunner_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &scriptedBackend{}

	if _, err := NewRunner(b, quickConfig()).Names(ctx, "text"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(b.calls) != 0 {
		t.Errorf("expected no calls after cancel, got %d", len(b.calls))
	}
}

func TestNames_BadResponse(t *testing.T) {
	b := &scriptedBackend{responses: []string{"I could not find any JSON to give you."}}

	_, err := NewRunner(b, quickConfig()).Names(context.Background(), "text")
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestNames_PassParameters(t *testing.T) {
	b := &scriptedBackend{responses: []string{`{"characters": []}`}}

	if _, err := NewRunner(b, quickConfig()).Names(context.Background(), "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := b.calls[0]
	if call.maxTokens != 256 {
		t.Errorf("expected 256 output tokens, got %d", call.maxTokens)
	}
	if call.temperature != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", call.temperature)
	}
	if !strings.Contains(call.system, "name extraction engine") {
		t.Errorf("unexpected system prompt: %q", call.system)
	}
	if !strings.Contains(call.user, "no trailing commas") {
		t.Errorf("user prompt missing JSON reminder")
	}
}

type backendFunc func(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)

func (f backendFunc) Generate(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	return f(ctx, system, user, maxTokens, temperature)
}
