package fulfillment

import (
	"time"

	"github.com/willbeckett/homelink-core/internal/device"
)

// StateAttributes shapes one device state into the vendor attribute set.
// A state past the staleness window yields an offline entry with no
// numeric values. Shared by QUERY responses and report-state payloads so
// the vendor sees identical shaping on both paths.
func StateAttributes(state device.State, now time.Time, window time.Duration) map[string]any {
	if !state.Online(now, window) {
		return map[string]any{
			"online": false,
			"status": StatusOffline,
		}
	}

	attrs := map[string]any{
		"online": true,
		"status": StatusSuccess,
	}
	for capability, value := range state.Readings {
		attrs[describeTrait(capability).stateKey] = value
	}
	return attrs
}
