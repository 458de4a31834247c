package attempt_test

import (
	"testing"
	"time"

	"timed-quiz-service/internal/attempt"
	"timed-quiz-service/internal/domain"
)

func TestReconcile(t *testing.T) {
	now := start
	oneAnswer := []domain.Answer{{QuestionID: 1, SelectedIndex: 3}}

	cases := []struct {
		name        string
		snap        domain.Snapshot
		lastSave    time.Time
		hasLastSave bool
		want        attempt.Recovery
	}{
		{
			name:        "elapsed beyond remaining expires",
			snap:        domain.Snapshot{Answers: oneAnswer, RemainingSec: 40},
			lastSave:    now.Add(-50 * time.Second),
			hasLastSave: true,
			want:        attempt.Recovery{RemainingSec: 0, ElapsedSec: 50, Finished: true, Reason: attempt.ReasonExpired},
		},
		{
			name:        "elapsed within remaining resumes",
			snap:        domain.Snapshot{Answers: oneAnswer, RemainingSec: 40},
			lastSave:    now.Add(-15500 * time.Millisecond),
			hasLastSave: true,
			want:        attempt.Recovery{RemainingSec: 25, ElapsedSec: 15},
		},
		{
			name:        "no answers resumes as fresh",
			snap:        domain.Snapshot{RemainingSec: 60},
			lastSave:    now.Add(-time.Hour),
			hasLastSave: true,
			want:        attempt.Recovery{RemainingSec: 60},
		},
		{
			name: "no last save skips the penalty",
			snap: domain.Snapshot{Answers: oneAnswer, RemainingSec: 40},
			want: attempt.Recovery{RemainingSec: 40},
		},
		{
			name:        "clock moved backwards",
			snap:        domain.Snapshot{Answers: oneAnswer, RemainingSec: 40},
			lastSave:    now.Add(time.Minute),
			hasLastSave: true,
			want:        attempt.Recovery{RemainingSec: 40},
		},
		{
			name:        "finished snapshot",
			snap:        domain.Snapshot{Answers: oneAnswer, RemainingSec: 12, IsFinished: true},
			lastSave:    now.Add(-time.Hour),
			hasLastSave: true,
			want:        attempt.Recovery{RemainingSec: 12, Finished: true, Reason: attempt.ReasonRecovered},
		},
		{
			name: "remaining above budget is clamped",
			snap: domain.Snapshot{RemainingSec: 600},
			want: attempt.Recovery{RemainingSec: 60},
		},
		{
			name: "zero remaining is expired",
			snap: domain.Snapshot{Answers: oneAnswer},
			want: attempt.Recovery{Finished: true, Reason: attempt.ReasonExpired},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := attempt.Reconcile(tc.snap, 60, tc.lastSave, tc.hasLastSave, now)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
