package domain

import "time"

type ActivityAction string

const (
	ActionEntry           ActivityAction = "ENTRY"
	ActionPyramid         ActivityAction = "PYRAMID"
	ActionExit            ActivityAction = "EXIT"
	ActionErosionAlert    ActivityAction = "EROSION_ALERT"
	ActionUnderwaterAlert ActivityAction = "UNDERWATER_ALERT"
	ActionCollapseAlert   ActivityAction = "COLLAPSE_ALERT"
)

// ActivityEntry is one line of the bounded in-memory activity feed consumed
// by dashboards. The feed keeps the last 100 entries, oldest evicted first.
type ActivityEntry struct {
	Time    time.Time      `json:"time"`
	Pair    string         `json:"pair"`
	Action  ActivityAction `json:"action"`
	Details string         `json:"details"`
}
