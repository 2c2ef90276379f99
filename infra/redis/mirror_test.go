package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/core/snapshot"
	"github.com/kilianp07/parkcast/internal/eventbus"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	assert.False(t, cfg.Enabled())
	cfg.SetDefaults()
	assert.Equal(t, "parkcast:snapshot:", cfg.KeyPrefix)
	assert.Equal(t, "parkcast:snapshots", cfg.Channel)
	assert.Equal(t, 600, cfg.TTLSeconds)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, Config{DB: -1}.Validate())
	assert.Error(t, Config{TTLSeconds: -5}.Validate())
}

func TestNewMirrorUnreachable(t *testing.T) {
	_, err := NewMirror(context.Background(), Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func startRedis(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("redis container: %v", err)
	}
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return cont, fmt.Sprintf("%s:%s", host, port.Port())
}

func TestMirrorWithRedisContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cont, addr := startRedis(ctx, t)
	defer func() { _ = cont.Terminate(context.Background()) }()

	m, err := NewMirror(ctx, Config{Addr: addr, TTLSeconds: 60})
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	_, ok, err := m.Load(ctx, "cam-001")
	require.NoError(t, err)
	assert.False(t, ok)

	watcher := goredis.NewClient(&goredis.Options{Addr: addr})
	defer func() { _ = watcher.Close() }()
	ps := watcher.Subscribe(ctx, m.Channel())
	defer func() { _ = ps.Close() }()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	bus := eventbus.NewTyped[snapshot.SnapshotUpdated]()
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx, bus) }()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	ts := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	bus.Publish(snapshot.SnapshotUpdated{Snapshot: model.CameraSnapshot{
		CameraID:  "cam-001",
		Timestamp: ts,
		Spots:     []model.Spot{{CameraID: "cam-001", SpotIndex: 0, Status: model.StatusEmpty, Lat: model.Float(40.808), Lng: model.Float(-73.962)}},
	}})

	select {
	case msg := <-ps.Channel():
		var got model.CameraSnapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "cam-001", got.CameraID)
	case <-time.After(5 * time.Second):
		t.Fatal("no pub/sub message")
	}

	snap, ok, err := m.Load(ctx, "cam-001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Timestamp.Equal(ts))
	require.Len(t, snap.Spots, 1)
	assert.InDelta(t, 40.808, *snap.Spots[0].Lat, 1e-9)

	ttl, err := watcher.TTL(ctx, m.Key("cam-001")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	cancel()
	assert.NoError(t, <-done)
}
