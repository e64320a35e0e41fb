package watch

import (
	"time"

	"github.com/oleksiyp/kubecd/pkg/updates"
)

// Trigger names what started a poll.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerInterval Trigger = "interval"
	TriggerFile     Trigger = "file"
	TriggerManual   Trigger = "manual"
)

// Result is the outcome of one poll.
type Result struct {
	Timestamp time.Time             `json:"timestamp"`
	Trigger   Trigger               `json:"trigger"`
	File      string                `json:"file,omitempty"`
	Updates   []updates.ImageUpdate `json:"updates,omitempty"`
	Failures  []updates.Failure     `json:"failures,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Empty reports whether the poll found nothing worth notifying about.
func (r Result) Empty() bool {
	return len(r.Updates) == 0 && len(r.Failures) == 0 && r.Error == ""
}

// Notifier receives non-empty poll results.
type Notifier interface {
	Notify(result Result) error
}

// Status describes a running poller.
type Status struct {
	Running  bool     `json:"running"`
	Interval string   `json:"interval"`
	Polls    int      `json:"polls"`
	Files    []string `json:"files"`
	Last     *Result  `json:"last,omitempty"`
}
