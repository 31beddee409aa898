package timer

import "time"

// Side identifies one of the two debate sides.
type Side string

const (
	SidePro Side = "pro"
	SideCon Side = "con"
)

// Slot is one timed speech in the fixed turn sequence.
type Slot string

const (
	SlotOpeningPro  Slot = "opening_pro"
	SlotOpeningCon  Slot = "opening_con"
	SlotRebuttalPro Slot = "rebuttal_pro"
	SlotRebuttalCon Slot = "rebuttal_con"
	SlotClosingPro  Slot = "closing_pro"
)

// SlotSpec fixes the speaking side and duration for one slot.
type SlotSpec struct {
	Slot     Slot
	Side     Side
	Duration time.Duration
}

// DefaultPlan is the fixed five-slot sequence. Sides alternate; the
// proponent opens and closes.
func DefaultPlan() []SlotSpec {
	return []SlotSpec{
		{Slot: SlotOpeningPro, Side: SidePro, Duration: 240 * time.Second},
		{Slot: SlotOpeningCon, Side: SideCon, Duration: 240 * time.Second},
		{Slot: SlotRebuttalPro, Side: SidePro, Duration: 180 * time.Second},
		{Slot: SlotRebuttalCon, Side: SideCon, Duration: 180 * time.Second},
		{Slot: SlotClosingPro, Side: SidePro, Duration: 120 * time.Second},
	}
}

// DefaultPrepBank is the banked prep allowance per side.
const DefaultPrepBank = 180 * time.Second
