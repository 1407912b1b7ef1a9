package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-guardian/internal/geo"
	"github.com/mr1hm/go-guardian/internal/models"
)

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}
func (failingKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func TestStatusStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStatusStore(NewMemoryKVStore(), time.Minute)

	pos := geo.Point{Lat: 48.8566, Lon: 2.3522}
	in := models.Status{
		UserID:         "alice",
		Position:       &pos,
		StaticSeconds:  42.5,
		FallArmed:      true,
		SequencerState: "awaiting_reply",
		Incidents:      3,
		UpdatedAt:      time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, in.StaticSeconds, out.StaticSeconds)
	assert.True(t, out.FallArmed)
	assert.Equal(t, "awaiting_reply", out.SequencerState)
	require.NotNil(t, out.Position)
	assert.Equal(t, pos, *out.Position)
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}

func TestStatusStore_Miss(t *testing.T) {
	store := NewStatusStore(NewMemoryKVStore(), time.Minute)

	_, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestStatusStore_Errors(t *testing.T) {
	store := NewStatusStore(failingKV{}, time.Minute)

	err := store.Save(context.Background(), models.Status{UserID: "bob"})
	assert.ErrorContains(t, err, "bob")

	kv := NewMemoryKVStore()
	require.NoError(t, kv.Set(context.Background(), StatusKey("bob"), "{not json", 0))
	_, err = NewStatusStore(kv, 0).Load(context.Background(), "bob")
	assert.Error(t, err)
}

func TestMemoryKVStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	kv := NewMemoryKVStore()
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "k", "v", 10*time.Second))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(10 * time.Second)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "guardian:status:alice", StatusKey("alice"))
}
