package openhtf

import "context"

// TriggerForUnit returns a start trigger that fires immediately with a
// fixed unit identifier. Useful for benches without an operator gate.
func TriggerForUnit(unitID string) StartTrigger {
	return func(context.Context) (string, error) {
		return unitID, nil
	}
}

// TriggerFromChannel returns a start trigger that blocks until a unit
// identifier arrives on ch, e.g. from a barcode scanner loop.
func TriggerFromChannel(ch <-chan string) StartTrigger {
	return func(ctx context.Context) (string, error) {
		select {
		case unitID := <-ch:
			return unitID, nil
		case <-ctx.Done():
			return "", context.Cause(ctx)
		}
	}
}
