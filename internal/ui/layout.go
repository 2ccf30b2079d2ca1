package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which the detail pane is
	// stacked under the table.
	LayoutCompactWidth = 110

	// LayoutAgeWidth is the minimum table width to show the age column.
	LayoutAgeWidth = 70
)

// Display limits.
const (
	// LogFetchLimit is the number of log lines read per refresh.
	LogFetchLimit = 500

	// MaxToasts is the number of live notifications shown under the header.
	MaxToasts = 3

	// SinkBuffer is how many notifications may wait for the UI loop.
	SinkBuffer = 16
)

// Timing constants.
const (
	// DefaultUIInterval is the default UI refresh interval.
	DefaultUIInterval = time.Second

	// ToastLifetime is how long a notification stays in the toast strip.
	ToastLifetime = 10 * time.Second

	// FlashLifetime is how long an action result stays in the command bar.
	FlashLifetime = 5 * time.Second

	// ActionTimeout bounds claim/complete requests.
	ActionTimeout = 15 * time.Second
)
