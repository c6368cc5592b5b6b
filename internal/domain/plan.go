package domain

// PlanTier enumerates subscription tiers. The record ceiling is derived from
// the tier, never stored on its own row.
type PlanTier string

const (
	PlanBase      PlanTier = "BASE"
	PlanTier2     PlanTier = "TIER2"
	PlanTier3     PlanTier = "TIER3"
	PlanUnlimited PlanTier = "UNLIMITED"
)

// UnlimitedRecords marks a tier with no record ceiling.
const UnlimitedRecords = -1

var planCeilings = map[PlanTier]int{
	PlanBase:      5,
	PlanTier2:     50,
	PlanTier3:     250,
	PlanUnlimited: UnlimitedRecords,
}

// RecordCeiling returns the maximum number of records the tier permits, or
// UnlimitedRecords. Unknown tiers get the BASE ceiling; the limit is advisory
// and enforced at creation time only, so failing closed here is enough.
func (p PlanTier) RecordCeiling() int {
	if c, ok := planCeilings[p]; ok {
		return c
	}
	return planCeilings[PlanBase]
}

func (p PlanTier) Valid() bool {
	_, ok := planCeilings[p]
	return ok
}
