package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/willbeckett/homelink-core/internal/device"
)

// DeviceReader is the read side of the device state store.
type DeviceReader interface {
	Devices() []device.Device
	Get(deviceID string) (device.Device, device.State, error)
	StalenessWindow() time.Duration
}

// AttributeProvider supplies externally aggregated device attributes for
// response enrichment. Optional; if nil or unavailable, responses are
// built from the state store alone.
type AttributeProvider interface {
	Fetch(ctx context.Context) (map[string]map[string]any, error)
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Handler dispatches vendor fulfillment envelopes to discovery, query,
// and execute logic against the device state store.
//
// Authentication happens upstream in the HTTP layer; the handler assumes
// the request is already authorised and deals only with intent semantics.
type Handler struct {
	store       DeviceReader
	provider    AttributeProvider
	agentUserID string
	logger      Logger

	// now is swappable for staleness tests.
	now func() time.Time
}

// Options holds configuration for creating a handler.
type Options struct {
	// Store is the device state store.
	Store DeviceReader

	// Provider is an optional external attribute source. May be nil.
	Provider AttributeProvider

	// AgentUserID identifies this service's user in SYNC responses.
	AgentUserID string

	// Logger is optional; if nil the handler is silent.
	Logger Logger
}

// New creates a fulfillment handler.
func New(opts Options) (*Handler, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("fulfillment: store is required")
	}
	if opts.AgentUserID == "" {
		return nil, fmt.Errorf("fulfillment: agent user id is required")
	}

	return &Handler{
		store:       opts.Store,
		provider:    opts.Provider,
		agentUserID: opts.AgentUserID,
		logger:      opts.Logger,
		now:         time.Now,
	}, nil
}

// Handle processes one fulfillment envelope and always returns a
// well-formed response echoing the request's correlation identifier.
// Protocol failures become error payloads, never Go errors; the only
// error conditions live in the transport layer above.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	if len(req.Inputs) == 0 {
		return ErrorResponse(req.RequestID, ErrorCodeProtocolError, "no inputs in request")
	}

	input := req.Inputs[0]
	switch input.Intent {
	case IntentSync:
		return h.handleSync(req.RequestID)
	case IntentQuery:
		return h.handleQuery(ctx, req.RequestID, input.Payload)
	case IntentExecute:
		return h.handleExecute(req.RequestID, input.Payload)
	case IntentDisconnect:
		return Response{RequestID: req.RequestID, Payload: struct{}{}}
	default:
		h.logWarn("unknown intent", "intent", input.Intent)
		return ErrorResponse(req.RequestID, ErrorCodeProtocolError, "unknown intent "+input.Intent)
	}
}

// handleSync enumerates the static registry. Output is a pure function of
// configuration: consecutive calls return identical, order-stable lists.
func (h *Handler) handleSync(requestID string) Response {
	devices := h.store.Devices()
	out := make([]SyncDevice, 0, len(devices))

	for _, d := range devices {
		traits := make([]string, 0, len(d.Traits))
		for _, capability := range d.Traits {
			traits = append(traits, describeTrait(capability).vendorTrait)
		}

		out = append(out, SyncDevice{
			ID:     d.ID,
			Type:   vendorDeviceType,
			Traits: traits,
			Name:   DeviceName{Name: d.Name},
			// State deltas are pushed proactively, so the vendor can
			// skip polling.
			WillReportState: true,
			RoomHint:        d.Room,
		})
	}

	return Response{
		RequestID: requestID,
		Payload: SyncPayload{
			AgentUserID: h.agentUserID,
			Devices:     out,
		},
	}
}

// handleQuery reports current state for each requested device. Devices
// past the staleness window report offline with no numeric values;
// unknown identifiers get a deviceNotFound error entry.
func (h *Handler) handleQuery(ctx context.Context, requestID string, payload json.RawMessage) Response {
	var qp QueryPayload
	if err := json.Unmarshal(payload, &qp); err != nil {
		return ErrorResponse(requestID, ErrorCodeProtocolError, "malformed QUERY payload")
	}

	external := h.fetchAttributes(ctx)
	now := h.now()
	window := h.store.StalenessWindow()

	out := make(map[string]map[string]any, len(qp.Devices))
	for _, ref := range qp.Devices {
		dev, state, err := h.store.Get(ref.ID)
		if err != nil {
			out[ref.ID] = map[string]any{
				"online":    false,
				"status":    StatusError,
				"errorCode": ErrorCodeDeviceNotFound,
			}
			continue
		}

		attrs := StateAttributes(state, now, window)
		if attrs["online"] == true {
			for k, v := range external[dev.ID] {
				if _, exists := attrs[k]; !exists {
					attrs[k] = v
				}
			}
		}
		out[ref.ID] = attrs
	}

	return Response{
		RequestID: requestID,
		Payload:   QueryResponsePayload{Devices: out},
	}
}

// handleExecute rejects all commands: the deployed sensors are read-only.
// Each command group gets a notSupported result so the vendor reports a
// sensible error per device instead of a blanket failure.
func (h *Handler) handleExecute(requestID string, payload json.RawMessage) Response {
	var ep ExecutePayload
	if err := json.Unmarshal(payload, &ep); err != nil {
		return ErrorResponse(requestID, ErrorCodeProtocolError, "malformed EXECUTE payload")
	}

	results := make([]CommandResult, 0, len(ep.Commands))
	for _, cmd := range ep.Commands {
		ids := make([]string, 0, len(cmd.Devices))
		for _, ref := range cmd.Devices {
			ids = append(ids, ref.ID)
		}
		results = append(results, CommandResult{
			IDs:       ids,
			Status:    StatusError,
			ErrorCode: ErrorCodeNotSupported,
		})
	}

	return Response{
		RequestID: requestID,
		Payload:   ExecuteResponsePayload{Commands: results},
	}
}

// fetchAttributes pulls external attributes, absorbing provider failures.
// The provider is eventually consistent with the bus; missing data just
// means responses come from the store alone.
func (h *Handler) fetchAttributes(ctx context.Context) map[string]map[string]any {
	if h.provider == nil {
		return nil
	}

	attrs, err := h.provider.Fetch(ctx)
	if err != nil {
		h.logWarn("attribute provider unavailable", "error", err)
		return nil
	}
	return attrs
}

func (h *Handler) logWarn(msg string, keysAndValues ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, keysAndValues...)
	}
}
