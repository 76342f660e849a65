package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated check-in call metrics.
// Workspace isolation: WorkspaceID is required.

type CallsSummaryRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`
}

type CallsSummary struct {
	WorkspaceID string `json:"workspace_id"`

	TotalCalls       int `json:"total_calls"`
	CompletedCalls   int `json:"completed_calls"`
	TransferredCalls int `json:"transferred_calls"`
	FailedCalls      int `json:"failed_calls"`
	NoAnswerCalls    int `json:"no_answer_calls"`
	BusyCalls        int `json:"busy_calls"`
	CanceledCalls    int `json:"canceled_calls"`
	InProgressCalls  int `json:"in_progress_calls"`
	ScheduledCalls   int `json:"scheduled_calls"`
	UnknownCalls     int `json:"unknown_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// AnswerRate is completed+transferred over total, 0..1.
	AnswerRate float64 `json:"answer_rate"`

	// Outcomes counts calls per derived outcome label.
	Outcomes map[string]int `json:"outcomes"`
}
