package pim

import (
	"context"
	"strconv"
	"sync"
)

// TelemetryEmitter receives named measures from the PIM client.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter registers a custom emitter function. nil restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emitter() TelemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitRequestLatency records the duration of one request (milliseconds) including retries.
// name: "pim_request_latency_ms" with label {"outcome": "ok"|"error"}
func EmitRequestLatency(ctx context.Context, outcome string, ms int64) {
	emitter()(ctx, "pim_request_latency_ms", map[string]string{"outcome": outcome}, ms)
}

// EmitRetryAttempts records how many attempts a request needed.
// name: "pim_request_attempts"
func EmitRetryAttempts(ctx context.Context, attempts int) {
	emitter()(ctx, "pim_request_attempts", map[string]string{"attempts": strconv.Itoa(attempts)}, attempts)
}

// EmitPageItems records the number of items in a fetched page.
// name: "pim_page_items"
func EmitPageItems(ctx context.Context, items int) {
	emitter()(ctx, "pim_page_items", nil, items)
}

// EmitCircuitState records a circuit transition of a PIM resource.
// name: "pim_circuit_state" with labels {"resource": ..., "state": "open"|"closed"}; value is the failure count
func EmitCircuitState(ctx context.Context, resource, state string, failures int) {
	emitter()(ctx, "pim_circuit_state", map[string]string{"resource": resource, "state": state}, failures)
}
