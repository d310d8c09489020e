package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "taxfiling/pkg/domain"
)

func TestInMemoryFixedWindow(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewInMemory(3, time.Minute)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	owner := id.UserID(uuid.New())

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, owner)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should fit the window", i+1)
	}

	allowed, err := limiter.Allow(ctx, owner)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request in the window must be denied")

	// Another owner has an independent window.
	allowed, err = limiter.Allow(ctx, id.UserID(uuid.New()))
	require.NoError(t, err)
	assert.True(t, allowed)

	// The window rolling over resets the count.
	now = now.Add(time.Minute)
	allowed, err = limiter.Allow(ctx, owner)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestUnlimited(t *testing.T) {
	allowed, err := Unlimited{}.Allow(context.Background(), id.UserID(uuid.New()))
	require.NoError(t, err)
	assert.True(t, allowed)
}
