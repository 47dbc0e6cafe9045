package pipeline

import "context"

// Event is the sum type emitted on a run's event channel. Exactly one field
// group is populated per concrete event; Kind disambiguates.
type Event struct {
	Kind Kind

	Stage string

	// StageStarted / StageCompleted
	TotalItems uint64
	Succeeded  uint64
	Failed     uint64
	Skipped    uint64

	// Item* events
	ItemID string
	Label  string
	Detail string
	Error  error

	// DocumentFinalized
	DocID     string
	VersionID int64
}

type Kind int

const (
	KindStageStarted Kind = iota
	KindItemStarted
	KindItemCompleted
	KindItemSkipped
	KindItemFailed
	KindStageCompleted
	KindDocumentFinalized
)

func StageStarted(stage string, total uint64) Event {
	return Event{Kind: KindStageStarted, Stage: stage, TotalItems: total}
}

func ItemStarted(stage, itemID, label string) Event {
	return Event{Kind: KindItemStarted, Stage: stage, ItemID: itemID, Label: label}
}

func ItemCompleted(stage, itemID, detail string) Event {
	return Event{Kind: KindItemCompleted, Stage: stage, ItemID: itemID, Detail: detail}
}

func ItemSkipped(stage, itemID string) Event {
	return Event{Kind: KindItemSkipped, Stage: stage, ItemID: itemID}
}

func ItemFailed(stage, itemID string, err error) Event {
	return Event{Kind: KindItemFailed, Stage: stage, ItemID: itemID, Error: err}
}

func StageCompleted(stage string, succeeded, failed, skipped uint64) Event {
	return Event{Kind: KindStageCompleted, Stage: stage, Succeeded: succeeded, Failed: failed, Skipped: skipped}
}

func DocumentFinalized(docID string, versionID int64) Event {
	return Event{Kind: KindDocumentFinalized, DocID: docID, VersionID: versionID}
}

// Emit sends e on ch, honoring ctx cancellation so a consumer that has
// stopped reading (or a cancelled run) can't wedge the stage forever. Event
// ordering for a given item is preserved because all sends for one item
// happen inline on the same goroutine. Stage implementations outside this
// package use Emit directly; the Runner uses the unexported alias below.
func Emit(ctx context.Context, ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	case <-ctx.Done():
	}
}

func emit(ctx context.Context, ch chan<- Event, e Event) {
	Emit(ctx, ch, e)
}
