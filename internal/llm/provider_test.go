package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopProvider struct{ name string }

func (p *nopProvider) Name() string { return p.name }
func (p *nopProvider) Generate(context.Context, *Request) (*Response, error) {
	return &Response{}, nil
}
func (p *nopProvider) Stream(context.Context, *Request, chan<- StreamChunk) (*Response, error) {
	return &Response{}, nil
}

func TestRegistry(t *testing.T) {
	Register("nop-test", func(cfg Config, _ *zap.Logger) (Provider, error) {
		return &nopProvider{name: cfg.Provider}, nil
	})

	p, err := New(Config{Provider: "nop-test"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "nop-test", p.Name())
	assert.Contains(t, Registered(), "nop-test")

	_, err = New(Config{Provider: "missing"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleUser, NormalizeRole("user"))
	assert.Equal(t, RoleAssistant, NormalizeRole("assistant"))
	assert.Equal(t, RoleSystem, NormalizeRole("system"))
	assert.Equal(t, RoleUser, NormalizeRole("human"))
	assert.Equal(t, RoleUser, NormalizeRole(""))
}

func TestSendStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan StreamChunk) // 没有读取方

	done := make(chan error, 1)
	go func() { done <- Send(ctx, ch, StreamChunk{Delta: "x"}) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Send did not return after cancel")
	}
}
