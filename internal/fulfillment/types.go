package fulfillment

import "encoding/json"

// Vendor intent identifiers.
const (
	IntentSync       = "action.devices.SYNC"
	IntentQuery      = "action.devices.QUERY"
	IntentExecute    = "action.devices.EXECUTE"
	IntentDisconnect = "action.devices.DISCONNECT"
)

// Vendor status and error codes used in responses.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
	StatusOffline = "OFFLINE"

	ErrorCodeDeviceNotFound = "deviceNotFound"
	ErrorCodeNotSupported   = "notSupported"
	ErrorCodeAuthFailure    = "authFailure"
	ErrorCodeProtocolError  = "protocolError"
)

// vendorDeviceType is the vendor classification for all registered sensors.
const vendorDeviceType = "action.devices.types.SENSOR"

// Request is the vendor fulfillment envelope. Each request carries exactly
// one input in practice, but the wire format allows several; the handler
// processes the first.
type Request struct {
	RequestID string  `json:"requestId"`
	Inputs    []Input `json:"inputs"`
}

// Input is one intent within the envelope. The payload shape depends on
// the intent, so it stays raw until the intent is known, then converts to
// a closed variant immediately.
type Input struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// QueryPayload is the typed payload of a QUERY intent.
type QueryPayload struct {
	Devices []DeviceRef `json:"devices"`
}

// ExecutePayload is the typed payload of an EXECUTE intent.
type ExecutePayload struct {
	Commands []Command `json:"commands"`
}

// Command groups target devices with the operations to run on them.
type Command struct {
	Devices   []DeviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

// DeviceRef identifies a device in a request payload.
type DeviceRef struct {
	ID string `json:"id"`
}

// Execution is a single vendor command with its parameters.
type Execution struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the envelope returned for every intent. The correlation
// identifier always echoes the request's unchanged.
type Response struct {
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// SyncPayload answers a discovery request.
type SyncPayload struct {
	AgentUserID string       `json:"agentUserId"`
	Devices     []SyncDevice `json:"devices"`
}

// SyncDevice describes one registered device to the vendor.
type SyncDevice struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Traits          []string   `json:"traits"`
	Name            DeviceName `json:"name"`
	WillReportState bool       `json:"willReportState"`
	RoomHint        string     `json:"roomHint,omitempty"`
}

// DeviceName carries the display name variants the vendor expects.
type DeviceName struct {
	Name string `json:"name"`
}

// QueryResponsePayload maps device IDs to their attribute sets.
type QueryResponsePayload struct {
	Devices map[string]map[string]any `json:"devices"`
}

// ExecuteResponsePayload lists per-command results.
type ExecuteResponsePayload struct {
	Commands []CommandResult `json:"commands"`
}

// CommandResult reports the outcome of one command group.
type CommandResult struct {
	IDs       []string `json:"ids"`
	Status    string   `json:"status"`
	ErrorCode string   `json:"errorCode,omitempty"`
}

// ErrorPayload is the protocol-level error envelope. Protocol errors ride
// on HTTP 200; only missing or unparseable credentials use the HTTP
// status layer.
type ErrorPayload struct {
	ErrorCode   string `json:"errorCode"`
	DebugString string `json:"debugString,omitempty"`
}

// ErrorResponse builds a protocol error envelope echoing the request's
// correlation identifier.
func ErrorResponse(requestID, errorCode, debug string) Response {
	return Response{
		RequestID: requestID,
		Payload: ErrorPayload{
			ErrorCode:   errorCode,
			DebugString: debug,
		},
	}
}

// traitDescriptor maps a capability to its vendor trait and the attribute
// key its reading is reported under.
type traitDescriptor struct {
	vendorTrait string
	stateKey    string
}

// traitCatalog covers the capabilities the deployed sensors publish.
// Unlisted capabilities fall back to the generic sensor-state trait with
// the capability name as attribute key.
var traitCatalog = map[string]traitDescriptor{
	"humidity": {
		vendorTrait: "action.devices.traits.HumiditySetting",
		stateKey:    "humidityAmbientPercent",
	},
	"temperature": {
		vendorTrait: "action.devices.traits.TemperatureControl",
		stateKey:    "temperatureAmbientCelsius",
	},
}

// describeTrait resolves a capability to its vendor descriptor.
func describeTrait(capability string) traitDescriptor {
	if d, ok := traitCatalog[capability]; ok {
		return d
	}
	return traitDescriptor{
		vendorTrait: "action.devices.traits.SensorState",
		stateKey:    capability,
	}
}
