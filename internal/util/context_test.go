package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestSourceContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, SourceFromContext(ctx))

	ctx = ContextWithSource(ctx, "http")
	assert.Equal(t, "http", SourceFromContext(ctx))
}
