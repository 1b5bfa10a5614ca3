package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/willbeckett/homelink-core/internal/device"
	"github.com/willbeckett/homelink-core/internal/fulfillment"
	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
)

// Backoff bounds for retries within one cycle.
const (
	initialBackoff = time.Second
	maxBackoff     = 8 * time.Second
)

// StateSource is the read side of the device state store the reporter
// depends on.
type StateSource interface {
	Devices() []device.Device
	Snapshot() (map[string]device.State, uint64)
	StalenessWindow() time.Duration
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics holds reporter counters, read via Reporter.Metrics.
type Metrics struct {
	// Pushes counts successful registry pushes.
	Pushes uint64 `json:"pushes"`

	// FailedCycles counts cycles abandoned after exhausting retries.
	FailedCycles uint64 `json:"failed_cycles"`

	// SkippedCycles counts cycles suppressed because nothing changed.
	SkippedCycles uint64 `json:"skipped_cycles"`
}

// Reporter proactively pushes device state to the vendor's registry on a
// fixed interval, independent of request traffic.
//
// Each cycle: snapshot the store, compare the revision against the last
// successful push (delta suppression), shape the payload, obtain a bearer
// token from the service credential, and POST. Transport and 5xx failures
// retry with capped exponential backoff up to the configured attempt
// budget, then the cycle is dropped and logged; the next cycle always
// runs on schedule and a failure never crashes the process. A 4xx forces
// token re-acquisition before the next attempt.
//
// No lock spans network I/O: the snapshot is taken and released before
// the push begins.
type Reporter struct {
	store       StateSource
	tokens      TokenSource
	client      *http.Client
	registryURL string
	agentUserID string
	interval    time.Duration
	maxAttempts int
	pushTimeout time.Duration

	// backoff is the first retry delay; doubled per attempt up to
	// maxBackoff. Overridden in tests.
	backoff time.Duration

	// lastPushedRev and lastOnline identify the last successful push: the
	// store revision plus each device's online flag at push time. A device
	// can cross the staleness window without a store write, so the
	// revision alone is not enough. Guarded by mu together with pushedOnce
	// and metrics.
	mu            sync.Mutex
	lastPushedRev uint64
	lastOnline    map[string]bool
	pushedOnce    bool
	metrics       Metrics

	cancel context.CancelFunc
	done   chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// Options holds configuration for creating a reporter.
type Options struct {
	// Config is the reporter section of the service configuration.
	Config config.ReporterConfig

	// Store is the device state store.
	Store StateSource

	// Tokens overrides the service-credential token source. If nil, one
	// is built from Config. Tests inject a stub here.
	Tokens TokenSource

	// Logger is optional; if nil the reporter is silent.
	Logger Logger
}

// New creates a reporter. Call Start to begin the push cycle.
func New(opts Options) (*Reporter, error) {
	cfg := opts.Config
	if opts.Store == nil {
		return nil, fmt.Errorf("reporter: store is required")
	}
	if cfg.RegistryURL == "" {
		return nil, fmt.Errorf("reporter: registry url is required")
	}
	if cfg.AgentUserID == "" {
		return nil, fmt.Errorf("reporter: agent user id is required")
	}

	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	pushTimeout := time.Duration(cfg.PushTimeout) * time.Second
	if pushTimeout <= 0 {
		pushTimeout = 10 * time.Second
	}

	client := &http.Client{Timeout: pushTimeout}

	tokens := opts.Tokens
	if tokens == nil {
		if cfg.TokenURL == "" {
			return nil, fmt.Errorf("reporter: token url is required")
		}
		tokens = newServiceTokenSource(cfg.TokenURL, cfg.ServiceAccount.Issuer, cfg.ServiceAccount.Key, client)
	}

	return &Reporter{
		store:       opts.Store,
		tokens:      tokens,
		client:      client,
		registryURL: cfg.RegistryURL,
		agentUserID: cfg.AgentUserID,
		interval:    interval,
		maxAttempts: maxAttempts,
		backoff:     initialBackoff,
		pushTimeout: pushTimeout,
		logger:      opts.Logger,
	}, nil
}

// Start launches the periodic push task. The task stops when ctx is
// cancelled or Close is called.
func (r *Reporter) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logInfo("reporter started", "interval", r.interval.String(), "registry_url", r.registryURL)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runCycle(ctx)
			}
		}
	}()
}

// Close stops the periodic task and waits for an in-flight cycle to end.
func (r *Reporter) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// Metrics returns a copy of the current reporter counters.
func (r *Reporter) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// SetLogger sets the logger for the reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// runCycle executes one report cycle. Failures are contained here; the
// caller's loop never sees an error.
func (r *Reporter) runCycle(ctx context.Context) {
	states, rev := r.store.Snapshot()
	now := time.Now()
	window := r.store.StalenessWindow()
	devices := r.store.Devices()

	online := make(map[string]bool, len(devices))
	for _, dev := range devices {
		online[dev.ID] = states[dev.ID].Online(now, window)
	}

	r.mu.Lock()
	unchanged := r.pushedOnce && rev == r.lastPushedRev && sameOnline(online, r.lastOnline)
	if unchanged {
		r.metrics.SkippedCycles++
	}
	r.mu.Unlock()

	if unchanged {
		r.logDebug("skipping report cycle, no changes since last push", "revision", rev)
		return
	}

	payload, err := r.buildPayload(states, devices, now, window)
	if err != nil {
		r.logError("building report payload", err)
		return
	}

	if err := r.pushWithRetry(ctx, payload); err != nil {
		r.mu.Lock()
		r.metrics.FailedCycles++
		r.mu.Unlock()
		r.logWarn("report cycle abandoned", "revision", rev, "error", err)
		return
	}

	r.mu.Lock()
	r.lastPushedRev = rev
	r.lastOnline = online
	r.pushedOnce = true
	r.metrics.Pushes++
	r.mu.Unlock()

	r.logDebug("report cycle pushed", "revision", rev, "devices", len(states))
}

// sameOnline reports whether two online fingerprints agree for every
// device.
func sameOnline(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id, on := range a {
		prev, ok := b[id]
		if !ok || prev != on {
			return false
		}
	}
	return true
}

// buildPayload shapes the snapshot into the registry-update body. Every
// registered device reports: online devices with their attributes, stale
// devices as offline.
func (r *Reporter) buildPayload(states map[string]device.State, devices []device.Device, now time.Time, window time.Duration) ([]byte, error) {
	shaped := make(map[string]map[string]any, len(devices))
	for _, dev := range devices {
		shaped[dev.ID] = fulfillment.StateAttributes(states[dev.ID], now, window)
	}

	body := map[string]any{
		"requestId":   uuid.NewString(),
		"agentUserId": r.agentUserID,
		"payload": map[string]any{
			"devices": map[string]any{
				"states": shaped,
			},
		},
	}

	return json.Marshal(body)
}

// pushWithRetry POSTs the payload, retrying transport and 5xx failures
// with capped exponential backoff. A 4xx invalidates the cached token so
// the next attempt re-acquires; every attempt has its own timeout,
// independent of the outer timer.
func (r *Reporter) pushWithRetry(ctx context.Context, payload []byte) error {
	backoff := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		lastErr = r.push(ctx, payload)
		if lastErr == nil {
			return nil
		}
		r.logDebug("registry push attempt failed", "attempt", attempt, "error", lastErr)
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.maxAttempts, lastErr)
}

// push performs one registry POST with a bounded timeout.
func (r *Reporter) push(ctx context.Context, payload []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.pushTimeout)
	defer cancel()

	token, err := r.tokens.Token(attemptCtx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, r.registryURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		// Likely an invalid or expired service token.
		r.tokens.Invalidate()
		return fmt.Errorf("%w: registry status %d, token invalidated", ErrPushFailed, resp.StatusCode)
	default:
		return fmt.Errorf("%w: registry status %d", ErrPushFailed, resp.StatusCode)
	}
}

func (r *Reporter) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger != nil {
		r.logger.Debug(msg, keysAndValues...)
	}
}

func (r *Reporter) logInfo(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *Reporter) logWarn(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger != nil {
		r.logger.Warn(msg, keysAndValues...)
	}
}

func (r *Reporter) logError(msg string, err error) {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
