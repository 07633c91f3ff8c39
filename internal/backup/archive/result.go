package archive

import (
	"errors"
	"fmt"
)

// Outcome is the three-way result of a unit of work.
type Outcome int

const (
	Success Outcome = iota
	PartialSuccess
	CompleteFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PartialSuccess:
		return "partial_success"
	case CompleteFailure:
		return "complete_failure"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MultiFrameResult is the outcome of archiving many items. A complete
// failure carries only Fatal; its output must not be used.
type MultiFrameResult struct {
	Outcome Outcome
	Frames  int
	Errors  []*FrameError
	Fatal   *FrameError
}

func completeFailure(err *FrameError) MultiFrameResult {
	return MultiFrameResult{Outcome: CompleteFailure, Fatal: err}
}

func collected(frames int, errs []*FrameError) MultiFrameResult {
	if len(errs) > 0 {
		return MultiFrameResult{Outcome: PartialSuccess, Frames: frames, Errors: errs}
	}
	return MultiFrameResult{Outcome: Success, Frames: frames}
}

// Merge combines results: the first complete failure dominates, otherwise
// any collected error makes the whole a partial success.
func Merge(results ...MultiFrameResult) MultiFrameResult {
	var (
		frames int
		errs   []*FrameError
	)
	for _, r := range results {
		if r.Outcome == CompleteFailure {
			return r
		}
		frames += r.Frames
		errs = append(errs, r.Errors...)
	}
	return collected(frames, errs)
}

// Err returns the fatal error of a complete failure, or nil.
func (r MultiFrameResult) Err() error {
	if r.Outcome != CompleteFailure {
		return nil
	}
	return r.Fatal
}

// ItemOutcome is what a per-kind archiver did with one interaction.
type ItemOutcome int

const (
	ItemSuccess ItemOutcome = iota
	// ItemPastRevision: exported as part of the latest revision instead.
	ItemPastRevision
	ItemSkippableUpdate
	ItemNotYetImplemented
	ItemMessageFailure
	ItemPartialFailure
	ItemCompleteFailure
)

// ItemResult is returned by the per-kind archivers on export. Details is
// set for ItemSuccess and ItemPartialFailure.
type ItemResult struct {
	Outcome ItemOutcome
	Details *Details
	Errors  []*FrameError
}

func itemSuccess(d *Details) ItemResult { return ItemResult{Outcome: ItemSuccess, Details: d} }

func itemMessageFailure(errs ...*FrameError) ItemResult {
	return ItemResult{Outcome: ItemMessageFailure, Errors: errs}
}

func itemWithErrors(d *Details, errs []*FrameError) ItemResult {
	if len(errs) == 0 {
		return itemSuccess(d)
	}
	return ItemResult{Outcome: ItemPartialFailure, Details: d, Errors: errs}
}

// RestoreOutcome is the result of restoring one frame.
type RestoreOutcome int

const (
	Restored RestoreOutcome = iota
	PartiallyRestored
	RestoreFailed
)

type RestoreResult struct {
	Outcome RestoreOutcome
	Errors  []*FrameError
}

func restored() RestoreResult { return RestoreResult{Outcome: Restored} }

func restoreFailed(errs ...*FrameError) RestoreResult {
	return RestoreResult{Outcome: RestoreFailed, Errors: errs}
}

func restoredWithErrors(errs []*FrameError) RestoreResult {
	if len(errs) == 0 {
		return restored()
	}
	return RestoreResult{Outcome: PartiallyRestored, Errors: errs}
}

// Fatal reports whether the result must abort the whole import.
func (r RestoreResult) Fatal() bool {
	if r.Outcome != RestoreFailed {
		return false
	}
	for _, e := range r.Errors {
		if errors.Is(e, ErrDeveloper) {
			return true
		}
	}
	return false
}

// RestoreSummary tallies an import.
type RestoreSummary struct {
	Recipients int
	Chats      int
	ChatItems  int
	Partial    int
	Failed     int
	Skipped    int
	Errors     []*FrameError
}

// FrameKind labels what a frame held, for RestoreSummary.Add.
type FrameKind int

const (
	FrameRecipient FrameKind = iota
	FrameChat
	FrameChatItem
)

// Add records the result of restoring one frame.
func (s *RestoreSummary) Add(kind FrameKind, r RestoreResult) {
	switch r.Outcome {
	case RestoreFailed:
		s.Failed++
		s.Errors = append(s.Errors, r.Errors...)
		return
	case PartiallyRestored:
		s.Partial++
		s.Errors = append(s.Errors, r.Errors...)
	}
	switch kind {
	case FrameRecipient:
		s.Recipients++
	case FrameChat:
		s.Chats++
	case FrameChatItem:
		s.ChatItems++
	}
}

// Outcome classifies the import as a whole.
func (s *RestoreSummary) Outcome() Outcome {
	if len(s.Errors) > 0 || s.Failed > 0 {
		return PartialSuccess
	}
	return Success
}
