package scraper

import "context"

// StoreInfo is what the coordinator needs to know about the resolved store.
type StoreInfo struct {
	ID      uint
	// 주소가 있는 오프라인 매장이면 in-store 태그 대상
	InStore bool
}

// ApplyResult is the outcome of persisting one record.
type ApplyResult struct {
	ProductID uint
	Outcome   Outcome
	Warnings  []string
}

// Catalog is the persistence boundary of a run. Apply performs the upsert and
// tagging of one item atomically; failures should be *StageError values so the
// coordinator can attribute them to upserting or tagging.
type Catalog interface {
	EnsureStore(ctx context.Context, spec StoreSpec, actor string) (*StoreInfo, error)
	Apply(ctx context.Context, storeID uint, rec Normalized, opts ApplyOptions) (*ApplyResult, error)
}

// ApplyOptions carries per-item persistence options.
type ApplyOptions struct {
	Tags           []string
	Actor          string
	DownloadImages bool
}

// Event types published to observers.
const (
	EventRunStarted  = "run_started"
	EventEnumerated  = "enumerated"
	EventItemDone    = "item_done"
	EventItemFailed  = "item_failed"
	EventRunFinished = "run_finished"
)

// RunEvent is a progress notification.
type RunEvent struct {
	Type    string      `json:"type"`
	RunID   string      `json:"run_id"`
	Site    string      `json:"site"`
	URL     string      `json:"url,omitempty"`
	Stage   Stage       `json:"stage,omitempty"`
	Outcome Outcome     `json:"outcome,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Count   int         `json:"count,omitempty"`
	Summary *RunSummary `json:"summary,omitempty"`
}

// Observer receives run events. Implementations must not block.
type Observer interface {
	OnEvent(event RunEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(RunEvent)

func (f ObserverFunc) OnEvent(e RunEvent) { f(e) }
