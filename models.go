package main

import "time"

type CheckStatus string

const (
	StatusSorted         CheckStatus = "sorted"
	StatusNeedsAttention CheckStatus = "needs_attention"
)

// CheckReason says what triggered a check. Only ReasonAuto is gated by snooze.
type CheckReason string

const (
	ReasonManual   CheckReason = "manual"
	ReasonAuto     CheckReason = "auto"
	ReasonService  CheckReason = "service"
	ReasonCheckAll CheckReason = "check_all"
	ReasonInitial  CheckReason = "initial"
)

// CheckRecord is one completed analysis outcome. Immutable once appended;
// dropped only by retention pruning.
type CheckRecord struct {
	Timestamp   time.Time   `json:"timestamp"`
	Status      CheckStatus `json:"status"`
	ToSort      []string    `json:"to_sort"`
	LookingGood []string    `json:"looking_good"`
}

// SpotPatterns is recomputed in full from the record sequence on every write,
// except LongestStreak which is a running maximum and never decreases.
type SpotPatterns struct {
	Recurring       map[string]int `json:"recurring"`
	UsuallySortedBy string         `json:"usually_sorted_by,omitempty"`
	WorstDay        string         `json:"worst_day,omitempty"`
	BestDay         string         `json:"best_day,omitempty"`
	CurrentStreak   int            `json:"current_streak"`
	LongestStreak   int            `json:"longest_streak"`
}

type SpotMemory struct {
	SpotID      string        `json:"spot_id"`
	Records     []CheckRecord `json:"records"` // time-ascending
	Patterns    SpotPatterns  `json:"patterns"`
	TotalResets int           `json:"total_resets"`
	LastReset   *time.Time    `json:"last_reset,omitempty"`
}

// Notes carries the model's commentary. Empty string means absent.
type Notes struct {
	Main          string `json:"main,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
	Encouragement string `json:"encouragement,omitempty"`
}

// AnalysisItem is one to-sort entry as normalized from the raw model response.
// Recurring info never comes from here; it is cross-referenced from memory.
type AnalysisItem struct {
	Item     string
	Location string
}

// AnalysisResult is the normalized outcome of one analyze call.
type AnalysisResult struct {
	Status      CheckStatus
	ToSort      []AnalysisItem
	LookingGood []string
	Notes       Notes
}

// ToSortItem is an AnalysisItem with recurring info resolved against the
// spot's memory at publication time.
type ToSortItem struct {
	Item           string `json:"item"`
	Location       string `json:"location,omitempty"`
	Recurring      bool   `json:"recurring"`
	RecurringCount int    `json:"recurring_count,omitempty"`
}

// SpotCheckState is the published per-spot projection. Replaced wholesale on
// every completed or failed check; never persisted.
type SpotCheckState struct {
	Sorted        bool          `json:"sorted"`
	Status        CheckStatus   `json:"status"`
	ToSort        []ToSortItem  `json:"to_sort"`
	LookingGood   []string      `json:"looking_good"`
	Notes         Notes         `json:"notes"`
	LastError     string        `json:"last_error,omitempty"`
	LastChecked   time.Time     `json:"last_checked"` // zero = never checked
	ImageSize     int           `json:"image_size"`
	Latency       time.Duration `json:"latency"`
	CurrentStreak int           `json:"current_streak"`
	LongestStreak int           `json:"longest_streak"`
}

// SpotSummary is the read-only view aggregates and the status report consume.
type SpotSummary struct {
	ID             string
	Name           string
	Sorted         bool
	Status         CheckStatus
	ToSortCount    int
	CurrentStreak  int
	LongestStreak  int
	LastChecked    time.Time
	NextCheck      time.Time // zero = no timer armed
	SnoozedUntil   time.Time // zero = not snoozed
	Overdue        bool
	NeedsAttention bool
}
