package attempt

import (
	"time"

	"timed-quiz-service/internal/domain"
)

// Recovery is the outcome of reconciling a durable snapshot with the time
// that passed since it was written.
type Recovery struct {
	RemainingSec int
	ElapsedSec   int
	Finished     bool
	Reason       FinishReason
}

// Reconcile merges a snapshot with elapsed wall-clock time. The elapsed
// penalty only applies to a snapshot with answers that is not finished and
// for which a local last-save timestamp exists; an attempt with no answers
// resumes as fresh no matter how old it is.
func Reconcile(snap domain.Snapshot, initialSec int, lastSave time.Time, hasLastSave bool, now time.Time) Recovery {
	remaining := snap.RemainingSec
	if remaining < 0 {
		remaining = 0
	}
	if initialSec > 0 && remaining > initialSec {
		remaining = initialSec
	}

	if snap.IsFinished {
		return Recovery{RemainingSec: remaining, Finished: true, Reason: ReasonRecovered}
	}

	rec := Recovery{RemainingSec: remaining}
	if len(snap.Answers) > 0 && hasLastSave {
		elapsed := int(now.Sub(lastSave) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		rec.ElapsedSec = elapsed
		rec.RemainingSec = remaining - elapsed
		if rec.RemainingSec < 0 {
			rec.RemainingSec = 0
		}
	}

	if rec.RemainingSec == 0 {
		rec.Finished = true
		rec.Reason = ReasonExpired
	}
	return rec
}
