// Package model turns per-prompt generators into batch api.Model implementations
// with bounded concurrency, rate limiting, retries and an optional response cache.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
)

// Generator answers a single compiled prompt.
type Generator interface {
	Generate(ctx context.Context, messages api.Messages, params api.Params) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, messages api.Messages, params api.Params) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, messages api.Messages, params api.Params) (string, error) {
	return f(ctx, messages, params)
}

// ErrorMode decides what a failed prompt does to the batch.
type ErrorMode string

const (
	// ErrorModeRaise fails the whole batch on the first prompt failure.
	ErrorModeRaise ErrorMode = "raise"
	// ErrorModeIgnore logs the failure and yields an empty output for that prompt.
	ErrorModeIgnore ErrorMode = "ignore"
)

const (
	DefaultConcurrency = 5
	DefaultTimeout     = 40 * time.Second
)

// Client is an api.Model over a Generator.
type Client struct {
	gen         Generator
	concurrency int
	limiter     *rate.Limiter
	timeout     time.Duration
	retries     uint64
	errorMode   ErrorMode
	logger      log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithConcurrency bounds the number of in-flight prompts in concurrent mode.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRateLimit caps requests per minute across the batch. Zero disables the limit.
func WithRateLimit(requestsPerMinute int) Option {
	return func(c *Client) {
		if requestsPerMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
}

// WithTimeout bounds each generation attempt. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets how many times a failed attempt is retried with exponential backoff.
func WithRetries(n uint64) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithErrorMode sets the per-prompt failure policy.
func WithErrorMode(m ErrorMode) Option {
	return func(c *Client) {
		c.errorMode = m
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient wraps gen. By default failures are raised, there is no rate
// limit and no retry.
func NewClient(gen Generator, opts ...Option) *Client {
	c := &Client{
		gen:         gen,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		errorMode:   ErrorModeRaise,
		logger:      log.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke answers every prompt and returns outputs in prompt order.
func (c *Client) Invoke(ctx context.Context, prompts []api.Messages, mode api.InvokeMode, params api.Params) ([]string, error) {
	outputs := make([]string, len(prompts))

	if mode != api.InvokeConcurrent || c.concurrency == 1 {
		for i, p := range prompts {
			out, err := c.generate(ctx, i, p, params)
			if err != nil {
				return nil, err
			}
			outputs[i] = out
		}
		return outputs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, p := range prompts {
		g.Go(func() error {
			out, err := c.generate(gctx, i, p, params)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (c *Client) generate(ctx context.Context, i int, messages api.Messages, params api.Params) (string, error) {
	var out string
	op := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		attemptCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		res, err := c.gen.Generate(attemptCtx, messages, params)
		if err != nil {
			return err
		}
		out = res
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.retries > 0 {
		policy = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries)
	}
	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	if err == nil {
		return out, nil
	}
	if c.errorMode == ErrorModeIgnore && ctx.Err() == nil {
		c.logger.Warnf("prompt %d failed, using empty output: %v", i, err)
		return "", nil
	}
	return "", fmt.Errorf("prompt %d: %w", i, err)
}

var _ api.Model = (*Client)(nil)
