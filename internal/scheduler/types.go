package scheduler

import (
	"fmt"
	"time"
)

// Trigger names a scheduled run.
type Trigger string

const (
	TriggerDaily   Trigger = "daily"
	TriggerWeekly  Trigger = "weekly"
	TriggerMonthly Trigger = "monthly"
	TriggerArchive Trigger = "archive"
)

// Triggers lists every trigger in registration order.
var Triggers = []Trigger{TriggerDaily, TriggerWeekly, TriggerMonthly, TriggerArchive}

// ParseTrigger validates a trigger name.
func ParseTrigger(s string) (Trigger, error) {
	for _, t := range Triggers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown trigger %q", s)
}

// RunState is the state of one run. A run never fails as a whole; unit
// failures only move it to CompletedWithErrors.
type RunState string

const (
	StateIdle                RunState = "idle"
	StateRunning             RunState = "running"
	StateCompleted           RunState = "completed"
	StateCompletedWithErrors RunState = "completed_with_errors"
)

// RunResult records one execution of a trigger. Failed also counts reports
// the run submitted that later failed in the queue.
type RunResult struct {
	Trigger     Trigger   `json:"trigger"`
	State       RunState  `json:"state"`
	PeriodStart string    `json:"period_start,omitempty"`
	PeriodEnd   string    `json:"period_end,omitempty"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}
