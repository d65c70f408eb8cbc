package scraper

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field names understood by the pipeline. Profiles may declare others; they are
// extracted but ignored downstream.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldCurrency    = "currency"
	FieldDescription = "description"
	FieldImage       = "image"
	FieldSKU         = "sku"
)

// State is the coordinator's position in a run.
type State string

const (
	StateIdle        State = "idle"
	StateEnumerating State = "enumerating"
	StatePerItem     State = "per_item"
)

// Stage is a per-item sub-state.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageExtracting  Stage = "extracting"
	StageNormalizing Stage = "normalizing"
	StageUpserting   Stage = "upserting"
	StageTagging     Stage = "tagging"
	StageFailed      Stage = "failed"
	StageDone        Stage = "done"
)

// Outcome of an upsert.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// RawFields holds the first non-empty match per profile field, untouched.
type RawFields map[string]string

// Normalized is a cleaned record ready for the catalog.
type Normalized struct {
	Name        string
	Description string
	Price       *decimal.Decimal
	Currency    string
	SKU         string
	ImageURL    string
	SourceURL   string
}

// Record is the unit flowing through one item's stages. It only lives for the
// duration of a run.
type Record struct {
	SourceURL  string
	StoreID    uint
	Raw        RawFields
	Normalized Normalized
	Warnings   []string
	Stage      Stage
	Outcome    Outcome
	ProductID  uint
	Reason     string
}

// ItemFailure is one entry of RunSummary.Failures.
type ItemFailure struct {
	URL    string `json:"url"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// ItemWarning records a recovered problem (price parse, image download).
type ItemWarning struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// RunSummary is the return value of a run. It is never persisted.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Site          string        `json:"site"`
	StoreID       uint          `json:"store_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	ListingPages  int           `json:"listing_pages"`
	ListingErrors int           `json:"listing_errors"`
	Enumerated    int           `json:"enumerated"`
	Inserted      int           `json:"inserted"`
	Updated       int           `json:"updated"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Failures      []ItemFailure `json:"failures,omitempty"`
	Warnings      []ItemWarning `json:"warnings,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Processed returns the number of items that reached a terminal outcome.
func (s *RunSummary) Processed() int {
	return s.Inserted + s.Updated + s.Skipped + s.Failed
}

func (s *RunSummary) record(rec *Record) {
	for _, w := range rec.Warnings {
		s.Warnings = append(s.Warnings, ItemWarning{URL: rec.SourceURL, Message: w})
	}
	switch rec.Outcome {
	case OutcomeInserted:
		s.Inserted++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
		s.Failures = append(s.Failures, ItemFailure{URL: rec.SourceURL, Stage: rec.Stage, Reason: rec.Reason})
	}
}
