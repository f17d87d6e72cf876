package model

import "time"

// Scheduler states
const (
	SchedulerStateRunning = "running"
	SchedulerStateStopped = "stopped"
)

// SchedulerStatus is the admin view of the trade scheduler
type SchedulerStatus struct {
	State           string       `json:"state"`
	IntervalSeconds int          `json:"interval_seconds"`
	RunInProgress   bool         `json:"run_in_progress"`
	LastRunAt       *time.Time   `json:"last_run_at,omitempty"`
	LastReport      *BatchReport `json:"last_report,omitempty"`
}

// AccountOverview is a user's balance with their holdings revalued
type AccountOverview struct {
	Balance        *Balance            `json:"balance"`
	Holdings       []*PortfolioHolding `json:"holdings"`
	PortfolioValue string              `json:"portfolio_value_usd"`
}
