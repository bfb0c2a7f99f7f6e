package main

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const barUpdateInterval = 50 * time.Millisecond

// progressBar wraps progressbar in spinner mode with enabled/disabled
// handling. All methods are no-ops when disabled.
type progressBar struct {
	bar *progressbar.ProgressBar
}

func newProgressBar(enabled bool) *progressBar {
	if !enabled {
		return &progressBar{}
	}
	return &progressBar{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(barUpdateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)}
}

// Describe updates the spinner description.
func (b *progressBar) Describe(s string) {
	if b.bar != nil {
		b.bar.Describe(s)
	}
}

// Finish clears the spinner.
func (b *progressBar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}
