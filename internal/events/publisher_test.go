package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"dsgvo-downloader/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func readStream(t *testing.T, client *redis.Client, stream string) []redis.XMessage {
	t.Helper()
	msgs, err := client.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	return msgs
}

func TestStreamPublisher_IncidentStored(t *testing.T) {
	_, client := setupTestRedis(t)
	p := NewStreamPublisher(client, "", zap.NewNop())
	ctx := context.Background()

	inc := &models.Incident{
		IncidentID:   12,
		Country:      "DE",
		Published:    1,
		ModifiedDate: models.DateTime{Time: time.Date(2023, time.April, 18, 9, 30, 0, 0, time.UTC)},
	}
	require.NoError(t, p.PublishIncidentStored(ctx, NewIncidentStored("run-1", inc)))

	msgs := readStream(t, client, DefaultStream)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeIncidentStored, msgs[0].Values["type"])

	var decoded IncidentStored
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, int32(12), decoded.IncidentID)
	assert.Equal(t, "2023-04-18 09:30:00", decoded.ModifiedDate)
}

func TestStreamPublisher_RunCompletedCustomStream(t *testing.T) {
	_, client := setupTestRedis(t)
	p := NewStreamPublisher(client, "custom:stream", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.PublishRunCompleted(ctx, RunCompleted{RunID: "run-2", Success: true, Listed: 3, Stored: 1, Skipped: []int32{3}}))

	msgs := readStream(t, client, "custom:stream")
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeRunCompleted, msgs[0].Values["type"])
	assert.Contains(t, msgs[0].Values["data"], `"skipped":[3]`)
	assert.Empty(t, readStream(t, client, DefaultStream))
}

func TestStreamPublisher_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	p := NewStreamPublisher(client, "", zap.NewNop())
	err := p.PublishRunCompleted(context.Background(), RunCompleted{RunID: "run-3"})
	assert.Error(t, err)
}
