package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kilianp07/parkcast/core/logger"
	"github.com/kilianp07/parkcast/core/model"
	coremqtt "github.com/kilianp07/parkcast/core/mqtt"
	"github.com/kilianp07/parkcast/core/snapshot"
	"github.com/kilianp07/parkcast/internal/eventbus"
	inflogger "github.com/kilianp07/parkcast/infra/logger"
)

// SnapshotPublisher republishes every snapshot update as a retained message
// on <prefix>/<camera_id>, so late subscribers get the current state.
type SnapshotPublisher struct {
	pub    coremqtt.Publisher
	prefix string
	bus    *eventbus.TypedBus[snapshot.SnapshotUpdated]
	log    logger.Logger
}

type snapshotMessage struct {
	model.CameraSnapshot
	Degraded bool `json:"degraded"`
}

// NewSnapshotPublisher creates a publisher. An empty prefix uses
// DefaultSnapshotPrefix.
func NewSnapshotPublisher(pub coremqtt.Publisher, prefix string, bus *eventbus.TypedBus[snapshot.SnapshotUpdated]) *SnapshotPublisher {
	if prefix == "" {
		prefix = DefaultSnapshotPrefix
	}
	return &SnapshotPublisher{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "/"),
		bus:    bus,
		log:    inflogger.New("mqtt_snapshots"),
	}
}

// Topic returns the topic snapshots of cameraID are published on.
func (p *SnapshotPublisher) Topic(cameraID string) string {
	return p.prefix + "/" + cameraID
}

// Start forwards bus events until ctx is done or the bus is closed.
func (p *SnapshotPublisher) Start(ctx context.Context) error {
	sub := p.bus.Subscribe()
	defer p.bus.Unsubscribe(sub)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if err := p.publish(ev); err != nil {
				p.log.Errorf("publish snapshot %s: %v", ev.Snapshot.CameraID, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *SnapshotPublisher) publish(ev snapshot.SnapshotUpdated) error {
	payload, err := json.Marshal(snapshotMessage{CameraSnapshot: ev.Snapshot, Degraded: ev.Degraded})
	if err != nil {
		return err
	}
	return p.pub.Publish(p.Topic(ev.Snapshot.CameraID), "snapshot", true, payload)
}
