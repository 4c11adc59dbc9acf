package passes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fablecast/dramatis/internal/budget"
	"github.com/fablecast/dramatis/internal/llama"
)

// minInputTokens floors retry shrinking so a pass never sends an empty
// excerpt.
const minInputTokens = 64

// ErrBadResponse reports model output with no usable JSON in it.
var ErrBadResponse = errors.New("no parsable JSON in model response")

// Backend generates a completion from a system and user prompt. Implemented
// by llama.Client.
type Backend interface {
	Generate(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)
}

// Config tunes the retry protocol shared by every pass.
type Config struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// TokenReductionOnRetry shrinks the input allowance by this many tokens
	// after a token-limit failure. Zero halves the allowance instead.
	TokenReductionOnRetry int
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// DefaultConfig returns the retry settings the pipeline starts from.
func DefaultConfig() Config {
	return Config{
		MaxRetries:            2,
		TokenReductionOnRetry: 512,
		Timeout:               10 * time.Minute,
	}
}

// Definition describes one extraction pass: its prompts, token budget, and
// sampling temperature.
type Definition struct {
	Name        string
	System      string
	Budget      budget.Budget
	Temperature float64
	// Build renders the user prompt, fitting its evidence into the given
	// character allowance.
	Build func(allowanceChars int) string
}

// Runner executes pass definitions against a backend.
type Runner struct {
	backend Backend
	cfg     Config
}

// NewRunner returns a runner using the given backend and retry settings.
func NewRunner(b Backend, cfg Config) *Runner {
	return &Runner{backend: b, cfg: cfg}
}

// run performs the shared attempt loop: render the prompt at the current
// input allowance, invoke the backend, and on a token-limit failure shrink
// the allowance before the next attempt. Other failures retry unchanged.
func (r *Runner) run(ctx context.Context, def Definition) (string, error) {
	allowance := def.Budget.Input
	attempts := r.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, err := r.invoke(ctx, def, allowance)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if errors.Is(err, llama.ErrTokenLimit) {
			allowance = shrink(allowance, r.cfg.TokenReductionOnRetry)
		}
	}
	return "", fmt.Errorf("%s pass failed after %d attempts: %w", def.Name, attempts, lastErr)
}

func (r *Runner) invoke(ctx context.Context, def Definition, allowance int) (string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	user := def.Build(allowance * budget.CharsPerToken)
	return r.backend.Generate(ctx, def.System, user, def.Budget.Output, def.Temperature)
}

func shrink(allowance, reduction int) int {
	if reduction > 0 {
		allowance -= reduction
	} else {
		allowance /= 2
	}
	if allowance < minInputTokens {
		return minInputTokens
	}
	return allowance
}
