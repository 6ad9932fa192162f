package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/codebench/core"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	inner := core.GeneratorFunc(func(context.Context, core.GenerateRequest) (string, error) {
		calls++
		return "", core.NewRemoteError(core.RemoteErrorTransport, "generate", errors.New("connection refused"))
	})
	gen := NewBreakerGenerator(inner, BreakerConfig{MaxFailures: 2, Timeout: time.Hour}, nil)

	for range 2 {
		_, err := gen.Generate(context.Background(), core.GenerateRequest{Prompt: "p"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", gen.State())

	_, err := gen.Generate(context.Background(), core.GenerateRequest{Prompt: "p"})
	var remote *core.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, core.RemoteErrorTransport, remote.Kind)
	assert.Contains(t, remote.Error(), "temporarily unavailable")
	assert.Equal(t, 2, calls, "open circuit does not reach the service")
}

func TestBreakerIgnoresCancellationAndMalformed(t *testing.T) {
	errs := []error{
		context.Canceled,
		core.NewRemoteError(core.RemoteErrorMalformed, "generate", errors.New("bad body")),
		context.Canceled,
	}
	i := 0
	inner := core.GeneratorFunc(func(context.Context, core.GenerateRequest) (string, error) {
		err := errs[i%len(errs)]
		i++
		return "", err
	})
	gen := NewBreakerGenerator(inner, BreakerConfig{MaxFailures: 1, Timeout: time.Hour}, nil)

	for range len(errs) {
		_, err := gen.Generate(context.Background(), core.GenerateRequest{Prompt: "p"})
		require.Error(t, err)
	}
	assert.Equal(t, "closed", gen.State())
	assert.Equal(t, len(errs), i)
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := core.GeneratorFunc(func(_ context.Context, req core.GenerateRequest) (string, error) {
		return "echo:" + req.Prompt, nil
	})
	gen := NewBreakerGenerator(inner, BreakerConfig{}, nil)
	text, err := gen.Generate(context.Background(), core.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", text)
}
