package log

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupOnce(t *testing.T) {
	Setup(true)
	assert.True(t, Initialized())
	first := slog.Default()

	Setup(false)
	assert.Same(t, first, slog.Default())
	assert.True(t, slog.Default().Enabled(t.Context(), slog.LevelDebug))
}

func TestRecoverPanic(t *testing.T) {
	cleaned := false
	func() {
		defer RecoverPanic("test", func() { cleaned = true })
		panic("boom")
	}()
	assert.True(t, cleaned)

	cleaned = false
	func() {
		defer RecoverPanic("test", func() { cleaned = true })
	}()
	assert.False(t, cleaned)
}
