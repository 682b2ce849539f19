package vitalog

import (
	"fmt"
	"strings"
)

// Finding is one analysis or synthesis output, kept with the directive that
// produced it.
type Finding struct {
	Directive string `json:"directive"`
	Output    string `json:"output"`
}

// Accumulator is the shared per-job state read and written by action
// handlers. One instance exists per job and is passed by reference to every
// handler invocation; the executor's strictly sequential dispatch is what
// makes the unsynchronized mutation safe.
//
// The search, analysis and synthesis lists are append-only. The final
// response is last-write-wins. Device snapshots and recalled memories are
// overwritten on each fetch.
type Accumulator struct {
	// ProfileID identifies the journal owner for memory operations.
	ProfileID string

	// Query is the original user query, available to handlers for prompts.
	Query string

	searchResults []SearchResult
	analyses      []Finding
	syntheses     []Finding

	finalResponse string
	hasFinal      bool

	activity *Activity
	sleep    *Sleep
	recalled []Memory

	// Re-planning signal: the flag and the replacement plan are always set
	// together and consumed together by the executor.
	replan *Plan
}

// NewAccumulator creates the shared state for one job.
func NewAccumulator(profileID, query string) *Accumulator {
	return &Accumulator{
		ProfileID: profileID,
		Query:     query,
	}
}

// AddSearchResults appends results to the append-only search list.
func (a *Accumulator) AddSearchResults(results []SearchResult) {
	a.searchResults = append(a.searchResults, results...)
}

// AddAnalysis appends one analysis finding.
func (a *Accumulator) AddAnalysis(f Finding) {
	a.analyses = append(a.analyses, f)
}

// AddSynthesis appends one synthesis finding.
func (a *Accumulator) AddSynthesis(f Finding) {
	a.syntheses = append(a.syntheses, f)
}

// SetFinalResponse overwrites the final user-facing text. When multiple
// respond actions run in one job, the last one wins.
func (a *Accumulator) SetFinalResponse(text string) {
	a.finalResponse = text
	a.hasFinal = true
}

// SetActivity overwrites the device activity snapshot.
func (a *Accumulator) SetActivity(act *Activity) {
	a.activity = act
}

// SetSleep overwrites the device sleep snapshot.
func (a *Accumulator) SetSleep(s *Sleep) {
	a.sleep = s
}

// SetRecalled overwrites the ephemeral list of recalled memories.
func (a *Accumulator) SetRecalled(memories []Memory) {
	a.recalled = memories
}

// RequestReplan installs a replacement plan. The executor observes it after
// the current dispatch and swaps the remaining queue.
func (a *Accumulator) RequestReplan(plan *Plan) {
	a.replan = plan
}

// TakeReplan consumes the re-planning signal: it returns the replacement
// plan, if any, and resets the signal so it cannot fire twice.
func (a *Accumulator) TakeReplan() (*Plan, bool) {
	if a.replan == nil {
		return nil, false
	}
	plan := a.replan
	a.replan = nil
	return plan, true
}

func (a *Accumulator) SearchResults() []SearchResult {
	out := make([]SearchResult, len(a.searchResults))
	copy(out, a.searchResults)
	return out
}

func (a *Accumulator) Analyses() []Finding {
	out := make([]Finding, len(a.analyses))
	copy(out, a.analyses)
	return out
}

func (a *Accumulator) Syntheses() []Finding {
	out := make([]Finding, len(a.syntheses))
	copy(out, a.syntheses)
	return out
}

// FinalResponse returns the final text and whether any respond action set it.
func (a *Accumulator) FinalResponse() (string, bool) {
	return a.finalResponse, a.hasFinal
}

func (a *Accumulator) Activity() *Activity { return a.activity }
func (a *Accumulator) Sleep() *Sleep       { return a.sleep }
func (a *Accumulator) Recalled() []Memory  { return a.recalled }

// Summary renders everything accumulated so far as prompt context for the
// analyze, synthesize and respond handlers.
func (a *Accumulator) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "User query: %s\n", a.Query)

	if len(a.searchResults) > 0 {
		b.WriteString("\nSearch results:\n")
		for _, r := range a.searchResults {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
		}
	}

	if a.activity != nil {
		fmt.Fprintf(&b, "\nActivity (%s): %d steps, %d kcal, %.1f km, %d active minutes",
			a.activity.Date, a.activity.Steps, a.activity.Calories,
			a.activity.DistanceKM, a.activity.ActiveMinutes)
		if a.activity.RestingHeartRate > 0 {
			fmt.Fprintf(&b, ", resting HR %d bpm", a.activity.RestingHeartRate)
		}
		b.WriteString("\n")
	}

	if a.sleep != nil {
		fmt.Fprintf(&b, "\nSleep (%s): %d min asleep of %d min, efficiency %d%%, deep %d / light %d / REM %d / wake %d\n",
			a.sleep.Date, a.sleep.MinutesAsleep, a.sleep.DurationMin, a.sleep.Efficiency,
			a.sleep.Stages.Deep, a.sleep.Stages.Light, a.sleep.Stages.REM, a.sleep.Stages.Wake)
	}

	if len(a.recalled) > 0 {
		b.WriteString("\nRelevant memories:\n")
		for _, m := range a.recalled {
			fmt.Fprintf(&b, "- %s: %s\n", m.Title, m.Content)
		}
	}

	if len(a.analyses) > 0 {
		b.WriteString("\nPrior analyses:\n")
		for _, f := range a.analyses {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Directive, f.Output)
		}
	}

	if len(a.syntheses) > 0 {
		b.WriteString("\nPrior syntheses:\n")
		for _, f := range a.syntheses {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Directive, f.Output)
		}
	}

	return b.String()
}
