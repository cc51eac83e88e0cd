// Package assets downloads sprite files under a shared concurrency ceiling
// with a per-attempt timeout and constant-backoff retry.
package assets

import "fmt"

// Category is one of the four sprite kinds.
type Category string

const (
	BackDefault  Category = "back_default"
	BackShiny    Category = "back_shiny"
	FrontDefault Category = "front_default"
	FrontShiny   Category = "front_shiny"
)

// Categories lists every sprite category in a fixed order.
var Categories = []Category{BackDefault, BackShiny, FrontDefault, FrontShiny}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case BackDefault, BackShiny, FrontDefault, FrontShiny:
		return true
	}
	return false
}

// Job is one file to download. Attempt counts the failed transient
// attempts so far.
type Job struct {
	SourceURL       string
	DestinationPath string
	Category        Category
	Attempt         int
}

func (j Job) String() string {
	return fmt.Sprintf("%s -> %s", j.SourceURL, j.DestinationPath)
}

// Outcome is the terminal result of a job.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// State is a step of the job lifecycle:
//
//	Pending -> InFlight -> {Success, Skipped, Failed}
//	InFlight -> Retrying -> InFlight
type State string

const (
	StatePending  State = "pending"
	StateInFlight State = "in_flight"
	StateRetrying State = "retrying"
	StateSuccess  State = "success"
	StateSkipped  State = "skipped"
	StateFailed   State = "failed"
)

func (o Outcome) state() State {
	switch o {
	case OutcomeSuccess:
		return StateSuccess
	case OutcomeSkipped:
		return StateSkipped
	default:
		return StateFailed
	}
}

// Result reports how a job ended.
type Result struct {
	Job      Job
	Outcome  Outcome
	Attempts int
	Err      error
}
