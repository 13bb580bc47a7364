// Package testllm provides a scripted fake implementation of llm.Client for
// use in runtime tests, the way the prior codebase's test suites stand up
// in-memory fakes for engine/session/tool dependencies rather than mocking
// a real provider SDK.
package testllm

import (
	"context"
	"fmt"
	"sync"

	"github.com/streetrace-ai/streetrace/runtime/llm"
)

// Script is one scripted response returned in order by Client.Invoke. If
// Err is set, Invoke returns it instead of Response.
type Script struct {
	Response llm.Response
	Err error
}

// Client is a Client whose responses are fixed ahead of time by the test,
// rather than produced by a real model.
type Client struct {
	mu sync.Mutex
	scripts []Script
	next int
	Requests []llm.Request // every request Invoke/Stream was called with, in order
}

// New constructs a Client that returns scripts in order; calling Invoke or
// Stream more times than len(scripts) panics, surfacing a test's incorrect
// call-count assumption immediately rather than silently looping.
func New(scripts ...Script) *Client {
	return &Client{scripts: scripts}
}

func (c *Client) Invoke(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.next >= len(c.scripts) {
		panic(fmt.Sprintf("testllm: Invoke called %d times but only %d scripts provided", c.next+1, len(c.scripts)))
	}
	s := c.scripts[c.next]
	c.next++
	return s.Response, s.Err
}

func (c *Client) Stream(ctx context.Context, req llm.Request, ch chan<- Chunk) error {
	return c.stream(ctx, req, ch)
}

// Chunk re-exports llm.Chunk so callers don't need both imports when
// constructing a channel for Stream.
type Chunk = llm.Chunk

func (c *Client) stream(ctx context.Context, req llm.Request, ch chan<- llm.Chunk) error {
	defer close(ch)
	resp, err := c.Invoke(ctx, req)
	if err != nil {
		return err
	}
	select {
	case ch <- llm.Chunk{Kind: "content", Content: resp.Content}:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, tc := range resp.ToolCalls {
		tc := tc
		select {
		case ch <- llm.Chunk{Kind: "tool_call", ToolCall: &tc}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case ch <- llm.Chunk{Kind: "done", TokensUsed: resp.TokensUsed}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
