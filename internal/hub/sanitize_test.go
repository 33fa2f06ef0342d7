package hub

import (
	"errors"
	"testing"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTimestamps(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "2025-03-14T09:26:53Z", Sanitize(ts))
	assert.Equal(t, "2025-03-14T09:26:53Z", Sanitize(&ts))

	var nilTime *time.Time
	assert.Nil(t, Sanitize(nilTime))
}

func TestSanitizeNestedPayload(t *testing.T) {
	payload := map[string]any{
		"id":   "m-1",
		"when": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"err":  errors.New("boom"),
		"tags": []any{"a", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	got, ok := Sanitize(payload).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m-1", got["id"])
	assert.Equal(t, "2025-01-01T00:00:00Z", got["when"])
	assert.Equal(t, "boom", got["err"])
	assert.Equal(t, []any{"a", "2025-01-02T00:00:00Z"}, got["tags"])
}

func TestSanitizeStructGoesThroughJSON(t *testing.T) {
	msg := models.NewMessage("chat-1", "user-1", models.RoleUser, "hi")

	got, ok := Sanitize(msg).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, msg.ID, got["_id"])
	assert.Equal(t, "hi", got["content"])
}

func TestSanitizeUnserializableFallback(t *testing.T) {
	assert.Equal(t, Unserializable, Sanitize(make(chan int)))
	assert.Equal(t, Unserializable, Sanitize(func() {}))

	got, ok := Sanitize(map[string]any{"bad": make(chan int)}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, Unserializable, got["bad"])
}

func TestSanitizeIsIdempotent(t *testing.T) {
	payload := map[string]any{
		"id":     "m-1",
		"when":   time.Now(),
		"nested": map[string]any{"n": 1.5, "list": []any{"x", true, nil}},
		"bad":    make(chan int),
	}

	once := Sanitize(payload)
	twice := Sanitize(once)
	assert.Equal(t, once, twice)
}
