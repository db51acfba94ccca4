package availability

import "time"

const (
	// SlotDuration is the fixed length of every appointment slot.
	SlotDuration = 40 * time.Minute
	// SlotStep is the distance between consecutive slot starts: the slot
	// itself plus a 5 minute buffer.
	SlotStep = 45 * time.Minute
	// MinWindow is the shortest window a doctor may declare.
	MinWindow = 45 * time.Minute
)

// SlotWindow is a generated (start, end) pair before persistence.
type SlotWindow struct {
	Start time.Time
	End   time.Time
}

// GenerateSlots partitions [windowStart, windowEnd] into 40 minute slots on
// a 45 minute step. A slot ending exactly at windowEnd is included; trailing
// time too short for a full slot is dropped, never emitted truncated.
// Deterministic, no side effects.
func GenerateSlots(windowStart, windowEnd time.Time) []SlotWindow {
	var slots []SlotWindow
	for cursor := windowStart; !cursor.Add(SlotDuration).After(windowEnd); cursor = cursor.Add(SlotStep) {
		slots = append(slots, SlotWindow{
			Start: cursor,
			End:   cursor.Add(SlotDuration),
		})
	}
	return slots
}
