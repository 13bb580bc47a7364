// Package ratelimit wraps an llm.Client with an AIMD-style adaptive
// tokens-per-minute limiter, grounded on the prior codebase's
// features/model/middleware AdaptiveRateLimiter. The cluster-coordination
// half of the prior codebase's limiter (a Pulse replicated map keeping the budget
// in sync across processes) is dropped — see DESIGN.md — leaving a
// process-local limiter, which is all a single compiled workflow's
// runtime needs.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/streetrace-ai/streetrace/runtime/llm"
)

// ErrRateLimited is returned by a wrapped llm.Client when the provider
// signals the caller has exceeded its rate limit; observing this error
// triggers AdaptiveRateLimiter.backoff.
var ErrRateLimited = errors.New("ratelimit: provider signaled rate limit exceeded")

// AdaptiveRateLimiter applies a token-bucket limiter on top of an
// llm.Client. It estimates the token cost of each request, blocks callers
// until capacity is available, and adjusts its effective tokens-per-minute
// budget in response to ErrRateLimited responses from the wrapped client.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM float64
	maxTPM float64
	recoveryRate float64

	onBackoff func(newTPM float64)
	onProbe func(newTPM float64)
}

// New constructs an AdaptiveRateLimiter with an initial and maximum
// tokens-per-minute budget. A non-positive initialTPM defaults to a
// conservative 60000 TPM; maxTPM is clamped up to initialTPM if given lower.
func New(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	return &AdaptiveRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM: initialTPM,
		minTPM: minTPM,
		maxTPM: maxTPM,
		recoveryRate: initialTPM * 0.05,
	}
}

// OnBackoff registers a callback invoked whenever the limiter reduces its
// budget in response to a rate-limit signal.
func (l *AdaptiveRateLimiter) OnBackoff(cb func(newTPM float64)) { l.onBackoff = cb }

// OnProbe registers a callback invoked whenever the limiter grows its
// budget back up after a successful call.
func (l *AdaptiveRateLimiter) OnProbe(cb func(newTPM float64)) { l.onProbe = cb }

// Wrap returns an llm.Client that enforces this limiter in front of next.
func (l *AdaptiveRateLimiter) Wrap(next llm.Client) llm.Client {
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next llm.Client
	limiter *AdaptiveRateLimiter
}

func (c *limitedClient) Invoke(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return llm.Response{}, err
	}
	resp, err := c.next.Invoke(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (c *limitedClient) Stream(ctx context.Context, req llm.Request, ch chan<- llm.Chunk) error {
	if err := c.limiter.wait(ctx, req); err != nil {
		close(ch)
		return err
	}
	err := c.next.Stream(ctx, req, ch)
	c.limiter.observe(err)
	return err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req llm.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onBackoff
	l.mu.Unlock()
	if cb != nil {
		cb(newTPM)
	}
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onProbe
	l.mu.Unlock()
	if cb != nil {
		cb(newTPM)
	}
}

// estimateTokens is a cheap heuristic: count characters across every
// message and tool definition, convert at a fixed ratio, and add a buffer
// for provider framing overhead.
func estimateTokens(req llm.Request) int {
	charCount := 0
	for _, m := range req.Messages {
		charCount += len(m.Content)
	}
	for _, t := range req.Tools {
		charCount += len(t.Description)
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
