package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestContext(t *testing.T) {
	t.Run("empty context yields zero values", func(t *testing.T) {
		ctx := context.Background()
		assert.Empty(t, RequestID(ctx))
		assert.Empty(t, ClientIP(ctx))
		assert.Empty(t, UserAgent(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("stored values round trip", func(t *testing.T) {
		pinned := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithClientMetadata(ctx, "127.0.0.1", "publishctl/1.0")
		ctx = WithTime(ctx, pinned)

		assert.Equal(t, "req-1", RequestID(ctx))
		assert.Equal(t, "127.0.0.1", ClientIP(ctx))
		assert.Equal(t, "publishctl/1.0", UserAgent(ctx))
		assert.Equal(t, pinned, Now(ctx))
	})
}
