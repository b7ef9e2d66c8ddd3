package rsyncstats

import "testing"

func TestObserverFuncAdaptsPlainFunction(t *testing.T) {
	var got TransferEvent
	var o Observer = ObserverFunc(func(e TransferEvent) { got = e })
	o.Observe(TransferEvent{Name: "a.txt", Kind: EventTransferred, BytesSent: 10})
	if got.Name != "a.txt" || got.Kind != EventTransferred || got.BytesSent != 10 {
		t.Errorf("Observe did not reach the underlying function: got %+v", got)
	}
}

func TestEventKindsAreDistinct(t *testing.T) {
	kinds := []EventKind{EventTransferred, EventUpToDate, EventDeleted, EventSkipped, EventError}
	seen := make(map[EventKind]bool)
	for _, k := range kinds {
		if seen[k] {
			t.Errorf("duplicate EventKind value %d", k)
		}
		seen[k] = true
	}
}
