// Package redis mirrors camera snapshots into Redis so other services can
// read the latest state without calling the HTTP API.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kilianp07/parkcast/core/logger"
	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/core/monitoring"
	"github.com/kilianp07/parkcast/core/snapshot"
	inflogger "github.com/kilianp07/parkcast/infra/logger"
	"github.com/kilianp07/parkcast/internal/eventbus"
)

// Config holds the mirror connection settings.
type Config struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	KeyPrefix  string `json:"key_prefix"`
	Channel    string `json:"channel"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool { return c.Addr != "" }

// SetDefaults fills the key prefix, channel and TTL.
func (c *Config) SetDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "parkcast:snapshot:"
	}
	if c.Channel == "" {
		c.Channel = "parkcast:snapshots"
	}
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 600
	}
}

// Validate checks numeric ranges.
func (c Config) Validate() error {
	if c.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0")
	}
	if c.TTLSeconds < 0 {
		return fmt.Errorf("redis.ttl_seconds must be >= 0")
	}
	return nil
}

// Mirror writes each snapshot update to <key_prefix><camera_id> and publishes
// it on the configured channel.
type Mirror struct {
	client *goredis.Client
	cfg    Config
	log    logger.Logger
}

// NewMirror connects and pings the server.
func NewMirror(ctx context.Context, cfg Config) (*Mirror, error) {
	cfg.SetDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Mirror{client: client, cfg: cfg, log: inflogger.New("redis_mirror")}, nil
}

// Key returns the key holding the snapshot of cameraID.
func (m *Mirror) Key(cameraID string) string { return m.cfg.KeyPrefix + cameraID }

// Channel returns the pub/sub channel updates are published on.
func (m *Mirror) Channel() string { return m.cfg.Channel }

// Write stores and announces one snapshot in a single transaction.
func (m *Mirror) Write(ctx context.Context, snap model.CameraSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ttl := time.Duration(m.cfg.TTLSeconds) * time.Second
	_, err = m.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, m.Key(snap.CameraID), payload, ttl)
		p.Publish(ctx, m.cfg.Channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror %s: %w", snap.CameraID, err)
	}
	return nil
}

// Load reads the mirrored snapshot of cameraID. ok is false when the key is
// missing or expired.
func (m *Mirror) Load(ctx context.Context, cameraID string) (snap model.CameraSnapshot, ok bool, err error) {
	val, err := m.client.Get(ctx, m.Key(cameraID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.CameraSnapshot{}, false, nil
	}
	if err != nil {
		return model.CameraSnapshot{}, false, err
	}
	if err := json.Unmarshal(val, &snap); err != nil {
		return model.CameraSnapshot{}, false, err
	}
	return snap, true, nil
}

// Start mirrors bus events until ctx is done or the bus is closed.
func (m *Mirror) Start(ctx context.Context, bus *eventbus.TypedBus[snapshot.SnapshotUpdated]) error {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := m.Write(wctx, ev.Snapshot)
			cancel()
			if err != nil {
				m.log.Errorf("%v", err)
				monitoring.CaptureException(err, map[string]string{"component": "redis_mirror", "camera_id": ev.Snapshot.CameraID})
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the connection pool.
func (m *Mirror) Close() error { return m.client.Close() }
