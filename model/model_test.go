package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
)

func prompts(n int) []api.Messages {
	out := make([]api.Messages, n)
	for i := range out {
		out[i] = api.Messages{{Role: api.RoleUser, Content: fmt.Sprintf("q%d", i)}}
	}
	return out
}

// echo answers with the prompt content, sleeping longer for earlier prompts
// so that concurrent completion order differs from input order.
func echo(n int) GeneratorFunc {
	return func(ctx context.Context, m api.Messages, _ api.Params) (string, error) {
		var idx int
		fmt.Sscanf(m[0].Content, "q%d", &idx)
		time.Sleep(time.Duration(n-idx) * time.Millisecond)
		return "a:" + m[0].Content, nil
	}
}

func TestInvokePreservesOrder(t *testing.T) {
	for _, mode := range []api.InvokeMode{api.InvokeSync, api.InvokeConcurrent} {
		t.Run(mode.String(), func(t *testing.T) {
			c := NewClient(echo(8), WithConcurrency(4), WithLogger(log.Nop()))
			out, err := c.Invoke(context.Background(), prompts(8), mode, nil)
			require.NoError(t, err)
			require.Len(t, out, 8)
			for i, o := range out {
				assert.Equal(t, fmt.Sprintf("a:q%d", i), o)
			}
		})
	}
}

func TestInvokeConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	gen := GeneratorFunc(func(context.Context, api.Messages, api.Params) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "ok", nil
	})

	_, err := NewClient(gen, WithConcurrency(2)).Invoke(context.Background(), prompts(10), api.InvokeConcurrent, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestInvokeRaisePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	gen := GeneratorFunc(func(context.Context, api.Messages, api.Params) (string, error) {
		return "", boom
	})

	for _, mode := range []api.InvokeMode{api.InvokeSync, api.InvokeConcurrent} {
		_, err := NewClient(gen).Invoke(context.Background(), prompts(3), mode, nil)
		assert.ErrorIs(t, err, boom, mode.String())
	}
}

func TestInvokeIgnoreYieldsEmptyOutput(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gen := GeneratorFunc(func(_ context.Context, m api.Messages, _ api.Params) (string, error) {
		if m[0].Content == "q1" {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	c := NewClient(gen, WithErrorMode(ErrorModeIgnore), WithLogger(zap.New(core).Sugar()))
	out, err := c.Invoke(context.Background(), prompts(3), api.InvokeSync, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "", "ok"}, out)
	assert.Equal(t, 1, logs.Len())
}

func TestInvokeRetries(t *testing.T) {
	var calls int32
	gen := GeneratorFunc(func(context.Context, api.Messages, api.Params) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	out, err := NewClient(gen, WithRetries(1)).Invoke(context.Background(), prompts(1), api.InvokeSync, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInvokeTimeout(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, _ api.Messages, _ api.Params) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := NewClient(gen, WithTimeout(10*time.Millisecond)).Invoke(context.Background(), prompts(1), api.InvokeSync, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvokePassesParams(t *testing.T) {
	var got api.Params
	var mu sync.Mutex
	gen := GeneratorFunc(func(_ context.Context, _ api.Messages, p api.Params) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		got = p
		return "", nil
	})

	_, err := NewClient(gen).Invoke(context.Background(), prompts(1), api.InvokeSync, api.Params{"temperature": 0.0})
	require.NoError(t, err)
	assert.Equal(t, api.Params{"temperature": 0.0}, got)
}

func TestCache(t *testing.T) {
	cache, err := OpenCache("", log.Nop())
	require.NoError(t, err)
	defer cache.Close()

	var calls int32
	gen := GeneratorFunc(func(_ context.Context, m api.Messages, p api.Params) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "answer to " + m[0].Content, nil
	})
	cached := cache.Wrap("gpt", gen)
	ctx := context.Background()
	msgs := api.Messages{{Role: api.RoleUser, Content: "2+2?"}}

	first, err := cached.Generate(ctx, msgs, api.Params{"temperature": 0.0})
	require.NoError(t, err)
	second, err := cached.Generate(ctx, msgs, api.Params{"temperature": 0.0})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = cached.Generate(ctx, msgs, api.Params{"temperature": 0.7})
	require.NoError(t, err)
	_, err = cache.Wrap("gemini", gen).Generate(ctx, msgs, api.Params{"temperature": 0.0})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCachePersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	msgs := api.Messages{{Role: api.RoleUser, Content: "hi"}}
	gen := GeneratorFunc(func(context.Context, api.Messages, api.Params) (string, error) {
		return "hello", nil
	})

	cache, err := OpenCache(dir, log.Nop())
	require.NoError(t, err)
	_, err = cache.Wrap("m", gen).Generate(context.Background(), msgs, nil)
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	cache, err = OpenCache(dir, log.Nop())
	require.NoError(t, err)
	defer cache.Close()
	failing := GeneratorFunc(func(context.Context, api.Messages, api.Params) (string, error) {
		return "", errors.New("should be served from cache")
	})
	out, err := cache.Wrap("m", failing).Generate(context.Background(), msgs, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
