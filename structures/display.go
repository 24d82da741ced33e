package structures

type DisplayEventType string

const (
	DisplayEventTypeVsync   DisplayEventType = "vsync"
	DisplayEventTypeHotplug DisplayEventType = "hotplug"
)

// DisplayEvent is one event published by a display. Timestamp is monotonic
// nanoseconds; Count is the running vsync counter of the display.
type DisplayEvent struct {
	Type      DisplayEventType `json:"type" msgpack:"type"`
	Timestamp int64            `json:"timestamp" msgpack:"timestamp"`
	Count     uint32           `json:"count,omitempty" msgpack:"count,omitempty"`
	Connected bool             `json:"connected,omitempty" msgpack:"connected,omitempty"`
}

// Wanted reports whether a receiver running at rate should see the event.
// Hotplug events are always delivered, vsync events every rate-th count.
func (e DisplayEvent) Wanted(rate int32) bool {
	switch e.Type {
	case DisplayEventTypeHotplug:
		return true
	case DisplayEventTypeVsync:
		return rate > 0 && e.Count%uint32(rate) == 0
	}
	return false
}
