package ingest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/willbeckett/homelink-core/internal/device"
	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
	"github.com/willbeckett/homelink-core/internal/infrastructure/mqtt"
)

// mockBus implements BusClient for testing.
type mockBus struct {
	mu            sync.Mutex
	subscriptions map[string]mqtt.MessageHandler
	subscribeErr  error
	onConnect     func()
	connected     bool
}

func newMockBus() *mockBus {
	return &mockBus{
		subscriptions: make(map[string]mqtt.MessageHandler),
		connected:     true,
	}
}

func (m *mockBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *mockBus) SetOnConnect(callback func()) {
	m.mu.Lock()
	m.onConnect = callback
	m.mu.Unlock()
}

func (m *mockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// deliver simulates a broker delivery to the subscribed handler.
func (m *mockBus) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	m.mu.Lock()
	handler, ok := m.subscriptions["home/sensor/+"]
	m.mu.Unlock()
	if !ok {
		t.Fatal("no handler subscribed for home/sensor/+")
	}
	if err := handler(topic, payload); err != nil {
		t.Fatalf("handler returned error = %v, handlers must absorb failures", err)
	}
}

// mockSink records mirrored readings.
type mockSink struct {
	mu       sync.Mutex
	readings []string
}

func (m *mockSink) WriteReading(deviceID, capability string, value float64, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, fmt.Sprintf("%s/%s=%v", deviceID, capability, value))
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}

func newTestStore(t *testing.T) *device.Store {
	t.Helper()
	store, err := device.NewStore(config.DevicesConfig{
		StalenessWindow: 300,
		Registry: []config.DeviceConfig{
			{ID: "humidity-1", Type: "sensor.humidity", Name: "Bedroom Humidity", Traits: []string{"humidity"}},
			{ID: "temp-1", Type: "sensor.temperature", Name: "Bedroom Temperature", Traits: []string{"temperature"}},
		},
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func newTestBridge(t *testing.T, bus *mockBus, store *device.Store, sink TelemetrySink) *Bridge {
	t.Helper()
	bridge, err := New(Options{
		Bus:   bus,
		Store: store,
		Sink:  sink,
		Site:  "home",
		QoS:   1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return bridge
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_MissingDependencies(t *testing.T) {
	store := newTestStore(t)
	bus := newMockBus()

	tests := []struct {
		name string
		opts Options
	}{
		{name: "nil bus", opts: Options{Store: store, Site: "home"}},
		{name: "nil store", opts: Options{Bus: bus, Site: "home"}},
		{name: "empty site", opts: Options{Bus: bus, Store: store}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() expected error for missing dependency")
			}
		})
	}
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestStart_Subscribes(t *testing.T) {
	bus := newMockBus()
	bridge := newTestBridge(t, bus, newTestStore(t), nil)

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, ok := bus.subscriptions["home/sensor/+"]; !ok {
		t.Error("Start() did not subscribe to home/sensor/+")
	}
}

func TestStart_SubscribeFails(t *testing.T) {
	bus := newMockBus()
	bus.subscribeErr = errors.New("broker unavailable")
	bridge := newTestBridge(t, bus, newTestStore(t), nil)

	err := bridge.Start()
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Start() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestStart_ResubscribesOnReconnect(t *testing.T) {
	bus := newMockBus()
	bridge := newTestBridge(t, bus, newTestStore(t), nil)

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Simulate the broker dropping session state, then reconnecting.
	bus.mu.Lock()
	delete(bus.subscriptions, "home/sensor/+")
	onConnect := bus.onConnect
	bus.mu.Unlock()

	if onConnect == nil {
		t.Fatal("Start() did not register an OnConnect callback")
	}
	onConnect()

	if _, ok := bus.subscriptions["home/sensor/+"]; !ok {
		t.Error("OnConnect callback did not resubscribe")
	}
}

// =============================================================================
// Message Handling Tests
// =============================================================================

func TestHandleMessage_AppliesUpdate(t *testing.T) {
	bus := newMockBus()
	store := newTestStore(t)
	sink := &mockSink{}
	bridge := newTestBridge(t, bus, store, sink)

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ts := time.Now().UTC().Truncate(time.Second)
	payload := fmt.Sprintf(`{"sensor_id":"humidity-1","value":55,"timestamp":%q}`, ts.Format(time.RFC3339))
	bus.deliver(t, "home/sensor/humidity", []byte(payload))

	_, state, err := store.Get("humidity-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Readings["humidity"] != 55 {
		t.Errorf("Readings[humidity] = %v, want 55", state.Readings["humidity"])
	}
	if !state.UpdatedAt.Equal(ts) {
		t.Errorf("UpdatedAt = %v, want %v", state.UpdatedAt, ts)
	}

	if got := bridge.Metrics().Applied; got != 1 {
		t.Errorf("Metrics().Applied = %d, want 1", got)
	}
	if sink.count() != 1 {
		t.Errorf("sink received %d readings, want 1", sink.count())
	}
}

func TestHandleMessage_NoTimestampUsesReceiveTime(t *testing.T) {
	bus := newMockBus()
	store := newTestStore(t)
	bridge := newTestBridge(t, bus, store, nil)

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Clockless firmware omits the timestamp; the reading is still applied
	// with the receive time, not dropped as malformed.
	before := time.Now()
	bus.deliver(t, "home/sensor/humidity", []byte(`{"sensor_id":"humidity-1","value":55}`))

	_, state, err := store.Get("humidity-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Readings["humidity"] != 55 {
		t.Errorf("Readings[humidity] = %v, want 55", state.Readings["humidity"])
	}
	if state.UpdatedAt.Before(before) || state.UpdatedAt.After(time.Now()) {
		t.Errorf("UpdatedAt = %v, want receive time near %v", state.UpdatedAt, before)
	}

	if got := bridge.Metrics(); got.Applied != 1 || got.Malformed != 0 {
		t.Errorf("Metrics() = %+v, want Applied=1 Malformed=0", got)
	}
}

func TestHandleMessage_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{name: "invalid json", topic: "home/sensor/humidity", payload: `{not json`},
		{name: "missing sensor_id", topic: "home/sensor/humidity", payload: `{"value":55,"timestamp":"2026-08-30T10:00:00Z"}`},
		{name: "short topic", topic: "humidity", payload: `{"sensor_id":"humidity-1","value":55,"timestamp":"2026-08-30T10:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newMockBus()
			store := newTestStore(t)
			bridge := newTestBridge(t, bus, store, nil)

			if err := bridge.Start(); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			bus.mu.Lock()
			handler := bus.subscriptions["home/sensor/+"]
			bus.mu.Unlock()
			if err := handler(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("handler error = %v, want nil", err)
			}

			if got := bridge.Metrics().Malformed; got != 1 {
				t.Errorf("Metrics().Malformed = %d, want 1", got)
			}
			if got := bridge.Metrics().Applied; got != 0 {
				t.Errorf("Metrics().Applied = %d, want 0", got)
			}
		})
	}
}

func TestHandleMessage_UnknownDevice(t *testing.T) {
	bus := newMockBus()
	bridge := newTestBridge(t, bus, newTestStore(t), nil)

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	payload := `{"sensor_id":"rogue-9","value":1,"timestamp":"2026-08-30T10:00:00Z"}`
	bus.deliver(t, "home/sensor/humidity", []byte(payload))

	if got := bridge.Metrics().UnknownDevice; got != 1 {
		t.Errorf("Metrics().UnknownDevice = %d, want 1", got)
	}
}

func TestHandleMessage_UnknownTrait(t *testing.T) {
	bus := newMockBus()
	bridge := newTestBridge(t, bus, newTestStore(t), nil)

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// temp-1 declares temperature, not humidity.
	payload := `{"sensor_id":"temp-1","value":55,"timestamp":"2026-08-30T10:00:00Z"}`
	bus.deliver(t, "home/sensor/humidity", []byte(payload))

	if got := bridge.Metrics().UnknownTrait; got != 1 {
		t.Errorf("Metrics().UnknownTrait = %d, want 1", got)
	}
}

func TestHandleMessage_StaleDropIsNotCounted(t *testing.T) {
	bus := newMockBus()
	store := newTestStore(t)
	sink := &mockSink{}
	bridge := newTestBridge(t, bus, store, sink)

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	t1 := time.Now().UTC()
	t0 := t1.Add(-time.Minute)

	fresh := fmt.Sprintf(`{"sensor_id":"humidity-1","value":55,"timestamp":%q}`, t1.Format(time.RFC3339Nano))
	stale := fmt.Sprintf(`{"sensor_id":"humidity-1","value":40,"timestamp":%q}`, t0.Format(time.RFC3339Nano))

	bus.deliver(t, "home/sensor/humidity", []byte(fresh))
	bus.deliver(t, "home/sensor/humidity", []byte(stale))

	// A stale drop is a store no-op, not a bridge failure; the bridge
	// still counts it as applied traffic and mirrors it.
	m := bridge.Metrics()
	if m.Malformed != 0 || m.UnknownDevice != 0 || m.UnknownTrait != 0 {
		t.Errorf("stale drop miscounted as failure: %+v", m)
	}

	_, state, _ := store.Get("humidity-1")
	if state.Readings["humidity"] != 55 {
		t.Errorf("Readings[humidity] = %v, want 55", state.Readings["humidity"])
	}
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParseUpdate(t *testing.T) {
	ts := "2026-08-30T10:15:00Z"

	tests := []struct {
		name    string
		topic   string
		payload string
		want    update
		wantErr bool
	}{
		{
			name:    "valid humidity reading",
			topic:   "home/sensor/humidity",
			payload: fmt.Sprintf(`{"sensor_id":"humidity-1","value":55.2,"timestamp":%q}`, ts),
			want: update{
				DeviceID:   "humidity-1",
				Capability: "humidity",
				Value:      55.2,
			},
		},
		{
			name:    "nested site prefix",
			topic:   "flat-4b/sensor/temperature",
			payload: fmt.Sprintf(`{"sensor_id":"temp-1","value":-3.5,"timestamp":%q}`, ts),
			want: update{
				DeviceID:   "temp-1",
				Capability: "temperature",
				Value:      -3.5,
			},
		},
		{
			name:    "missing timestamp substituted",
			topic:   "home/sensor/humidity",
			payload: `{"sensor_id":"humidity-1","value":55.2}`,
			want: update{
				DeviceID:   "humidity-1",
				Capability: "humidity",
				Value:      55.2,
			},
		},
		{
			name:    "topic too short",
			topic:   "sensor/humidity",
			payload: fmt.Sprintf(`{"sensor_id":"humidity-1","value":55,"timestamp":%q}`, ts),
			wantErr: true,
		},
		{
			name:    "empty capability",
			topic:   "home/sensor/",
			payload: fmt.Sprintf(`{"sensor_id":"humidity-1","value":55,"timestamp":%q}`, ts),
			wantErr: true,
		},
		{
			name:    "non-numeric value",
			topic:   "home/sensor/humidity",
			payload: fmt.Sprintf(`{"sensor_id":"humidity-1","value":"wet","timestamp":%q}`, ts),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUpdate(tt.topic, []byte(tt.payload))

			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("parseUpdate() error = %v, want ErrMalformedPayload", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("parseUpdate() error = %v", err)
			}
			if got.DeviceID != tt.want.DeviceID {
				t.Errorf("DeviceID = %q, want %q", got.DeviceID, tt.want.DeviceID)
			}
			if got.Capability != tt.want.Capability {
				t.Errorf("Capability = %q, want %q", got.Capability, tt.want.Capability)
			}
			if got.Value != tt.want.Value {
				t.Errorf("Value = %v, want %v", got.Value, tt.want.Value)
			}
			if got.Timestamp.IsZero() {
				t.Error("Timestamp should be parsed, got zero")
			}
		})
	}
}
