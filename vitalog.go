// Package vitalog implements a personal health-journaling engine: a free-text
// user query is turned into a typed action plan by an LLM, the plan is
// executed sequentially with dependency deferral, bounded retries and
// mid-flight re-planning, and the accumulated findings are written into a
// final research-backed response.
package vitalog

import (
	"context"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Completer is the LLM boundary consumed by the plan source and the
// analysis/synthesis/response handlers. Implementations try an ordered list
// of models and fall back on transient failures; see the llm package.
type Completer interface {
	// Complete returns a free-text completion for the prompt.
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)

	// CompleteJSON returns a completion that parses as JSON and, when schema
	// is non-nil, validates against it. A model whose output fails either
	// check counts as a failed model and the next one is tried.
	CompleteJSON(ctx context.Context, prompt, systemPrompt string, schema *jsonschema.Schema) (string, error)
}

// SearchClient is the web search collaborator.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SearchResult is one hit returned by the search collaborator.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// DeviceClient is the wearable data collaborator. Both methods return
// (nil, nil) when no data exists for the date; an expired-credential
// condition surfaces as an error distinguishable from "no data".
type DeviceClient interface {
	DailyActivity(ctx context.Context, date string) (*Activity, error)
	Sleep(ctx context.Context, date string) (*Sleep, error)
}

// Activity is a daily activity snapshot from the wearable provider.
type Activity struct {
	Date             string          `json:"date"`
	Steps            int             `json:"steps"`
	Calories         int             `json:"calories"`
	DistanceKM       float64         `json:"distance_km"`
	ActiveMinutes    int             `json:"active_minutes"`
	RestingHeartRate int             `json:"resting_heart_rate,omitempty"`
	HeartRateZones   []HeartRateZone `json:"heart_rate_zones,omitempty"`
}

// HeartRateZone is one named heart-rate zone with time spent in it.
type HeartRateZone struct {
	Name    string `json:"name"`
	Minutes int    `json:"minutes"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
}

// Sleep is a nightly sleep snapshot from the wearable provider.
type Sleep struct {
	Date          string      `json:"date"`
	DurationMin   int         `json:"duration_min"`
	MinutesAsleep int         `json:"minutes_asleep"`
	Efficiency    int         `json:"efficiency"`
	Stages        SleepStages `json:"stages"`
}

// SleepStages is the per-stage minute breakdown of one night.
type SleepStages struct {
	Deep  int `json:"deep"`
	Light int `json:"light"`
	REM   int `json:"rem"`
	Wake  int `json:"wake"`
}

// MemoryStore is the long-term memory collaborator backed by embeddings.
type MemoryStore interface {
	// Store persists a new memory record for the profile.
	Store(ctx context.Context, profileID string, rec MemoryRecord) (*Memory, error)

	// Search returns memories ordered by descending similarity to the query,
	// filtered by the similarity threshold and capped at limit entries.
	Search(ctx context.Context, profileID, query string, threshold float64, limit int) ([]Memory, error)
}

// MemoryRecord is the input for creating a new memory.
type MemoryRecord struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Kind       string `json:"kind,omitempty"`
	Importance int    `json:"importance,omitempty"`
}

// Memory is a persisted memory record, with Similarity populated on search.
type Memory struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Kind       string    `json:"kind,omitempty"`
	Importance int       `json:"importance,omitempty"`
	Similarity float64   `json:"similarity,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArtifactSink receives every intermediate artifact of a job. Sink failures
// degrade inspection only and must never abort a job.
type ArtifactSink interface {
	Write(jobID, name string, payload any) error
}
