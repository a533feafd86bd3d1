package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	logger, err := NewLogger("debug", "production")
	require.NoError(t, err)
	assert.NotNil(t, logger.Logger)

	_, err = NewLogger("chatty", "production")
	assert.Error(t, err)
}

func TestWithRequestID(t *testing.T) {
	logger := Nop()

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	assert.NotSame(t, logger.Logger, logger.WithRequestID(ctx))
	assert.Same(t, logger.Logger, logger.WithRequestID(context.Background()))
}
