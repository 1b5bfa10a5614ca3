package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/willbeckett/homelink-core/internal/infrastructure/mqtt"
)

// BusClient is the subset of the MQTT client the bridge depends on.
// This allows mocking in tests.
type BusClient interface {
	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// SetOnConnect registers a callback invoked after every reconnection.
	SetOnConnect(callback func())

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// StateStore is the write side of the device state store.
type StateStore interface {
	// Upsert applies a telemetry reading. Stale updates return nil.
	Upsert(deviceID, capability string, value float64, timestamp time.Time) error
}

// TelemetrySink receives a copy of every applied reading. Optional; if nil
// the bridge operates without mirroring.
type TelemetrySink interface {
	// WriteReading records a reading asynchronously. Must not block.
	WriteReading(deviceID, capability string, value float64, timestamp time.Time)
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics holds ingestion counters, read via Bridge.Metrics.
type Metrics struct {
	// Applied counts updates delivered to the store.
	Applied uint64 `json:"applied"`

	// Malformed counts payloads dropped during decoding.
	Malformed uint64 `json:"malformed"`

	// UnknownDevice counts updates for devices outside the static registry.
	UnknownDevice uint64 `json:"unknown_device"`

	// UnknownTrait counts updates naming a capability the device lacks.
	UnknownTrait uint64 `json:"unknown_trait"`
}

// Bridge consumes sensor telemetry from the message bus and applies it to
// the state store. It is the only writer of device state.
//
// The bridge subscribes with a single wildcard pattern covering every
// sensor capability under the configured site. Subscriptions are re-armed
// automatically after reconnection via the client's OnConnect callback
// (the MQTT client also restores tracked subscriptions itself; re-arming
// here covers brokers that drop session state).
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	bus    BusClient
	store  StateStore
	sink   TelemetrySink
	topics mqtt.Topics
	qos    byte

	metrics   Metrics
	metricsMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Bus is the connected MQTT client.
	Bus BusClient

	// Store is the device state store.
	Store StateStore

	// Sink is an optional telemetry mirror (e.g. InfluxDB). May be nil.
	Sink TelemetrySink

	// Site is the topic namespace for this deployment.
	Site string

	// QoS is the subscription quality of service level.
	QoS byte

	// Logger is optional; if nil the bridge is silent.
	Logger Logger
}

// New creates a bridge. Call Start to begin consuming.
func New(opts Options) (*Bridge, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("ingest: bus client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("ingest: state store is required")
	}
	if opts.Site == "" {
		return nil, fmt.Errorf("ingest: site is required")
	}

	return &Bridge{
		bus:    opts.Bus,
		store:  opts.Store,
		sink:   opts.Sink,
		topics: mqtt.Topics{Site: opts.Site},
		qos:    opts.QoS,
		logger: opts.Logger,
	}, nil
}

// Start subscribes to the sensor wildcard topic and registers the
// reconnection hook. Returns ErrSubscribeFailed if the initial
// subscription cannot be established.
func (b *Bridge) Start() error {
	if err := b.subscribe(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	b.bus.SetOnConnect(func() {
		if err := b.subscribe(); err != nil {
			b.logError("resubscribe after reconnect failed", err)
			return
		}
		b.logInfo("resubscribed after reconnect", "topic", b.topics.AllSensors())
	})

	b.logInfo("ingestion bridge started", "topic", b.topics.AllSensors(), "qos", b.qos)
	return nil
}

func (b *Bridge) subscribe() error {
	return b.bus.Subscribe(b.topics.AllSensors(), b.qos, b.handleMessage)
}

// handleMessage processes one bus message. Errors are absorbed into
// metrics; a bad message must never take down the subscription.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	upd, err := parseUpdate(topic, payload)
	if err != nil {
		b.countMalformed()
		b.logWarn("dropped malformed payload", "topic", topic, "error", err)
		return nil
	}

	if err := b.store.Upsert(upd.DeviceID, upd.Capability, upd.Value, upd.Timestamp); err != nil {
		b.countRejected(err)
		b.logWarn("dropped rejected update",
			"device_id", upd.DeviceID,
			"capability", upd.Capability,
			"error", err,
		)
		return nil
	}

	b.countApplied()

	if b.sink != nil {
		b.sink.WriteReading(upd.DeviceID, upd.Capability, upd.Value, upd.Timestamp)
	}

	b.logDebug("applied update",
		"device_id", upd.DeviceID,
		"capability", upd.Capability,
		"value", upd.Value,
	)
	return nil
}

// Metrics returns a copy of the current ingestion counters.
func (b *Bridge) Metrics() Metrics {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	return b.metrics
}

// Healthy reports whether the bus connection is up.
func (b *Bridge) Healthy() bool {
	return b.bus.IsConnected()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) countApplied() {
	b.metricsMu.Lock()
	b.metrics.Applied++
	b.metricsMu.Unlock()
}

func (b *Bridge) countMalformed() {
	b.metricsMu.Lock()
	b.metrics.Malformed++
	b.metricsMu.Unlock()
}

func (b *Bridge) countRejected(err error) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	if isUnknownTrait(err) {
		b.metrics.UnknownTrait++
		return
	}
	b.metrics.UnknownDevice++
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
