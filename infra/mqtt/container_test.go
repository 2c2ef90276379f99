package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/parkcast/core/ingest"
	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/core/snapshot"
	"github.com/kilianp07/parkcast/infra/logger"
	"github.com/kilianp07/parkcast/internal/eventbus"
)

func waitForMQTTReady(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("readiness-check")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for broker")
	}
	return lastErr
}

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\nlog_dest stdout\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("mosquitto container: %v", err)
	}
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForMQTTReady(broker, 5*time.Second); err != nil {
		_ = cont.Terminate(ctx)
		t.Skipf("mosquitto not ready at %s: %v", broker, err)
	}
	return cont, broker
}

func TestAnalysisRoundTripWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(context.Background()) }()

	cfg := Config{Broker: broker, QoS: map[string]byte{"analysis": 1, "snapshot": 1}}
	cfg.SetDefaults()
	cli, err := NewPahoClient(cfg)
	require.NoError(t, err)
	defer cli.Disconnect()

	bus := eventbus.NewTyped[snapshot.SnapshotUpdated]()
	store := snapshot.NewStore(nil, snapshot.WithEvents(bus))
	handler := ingest.NewHandler(store, nil, logger.NopLogger{})
	go func() { _ = NewAnalysisSubscriber(cli, cfg.AnalysisTopic, handler).Start(ctx) }()
	pub := NewSnapshotPublisher(cli, cfg.SnapshotPrefix, bus)
	go func() { _ = pub.Start(ctx) }()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	camera := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("camera-sim"))
	token := camera.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer camera.Disconnect(100)

	retained := make(chan []byte, 4)
	token = camera.Subscribe(pub.Topic("cam-001"), 1, func(_ paho.Client, m paho.Message) { retained <- m.Payload() })
	require.True(t, token.WaitTimeout(5*time.Second))

	body := `{"spots":[{"spot_index":0,"status":"empty"},{"spot_index":1,"status":"occupied"}]}`
	require.Eventually(t, func() bool {
		camera.Publish("parking/cameras/cam-001/analysis", 1, false, body).Wait()
		_, ok := store.Snapshot("cam-001")
		return ok
	}, 10*time.Second, 250*time.Millisecond)

	snap, _ := store.Snapshot("cam-001")
	assert.Equal(t, 1, snap.EmptyCount())

	select {
	case payload := <-retained:
		var got model.CameraSnapshot
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, "cam-001", got.CameraID)
		assert.Len(t, got.Spots, 2)
	case <-time.After(10 * time.Second):
		t.Fatal("no snapshot republished")
	}
}
