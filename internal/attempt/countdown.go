package attempt

import (
	"context"
	"errors"

	"timed-quiz-service/internal/domain"
)

func (m *Machine) armTickLocked(gen uint64) {
	m.tickTimer = m.clock.AfterFunc(m.cfg.TickInterval, func() { m.tick(gen) })
}

// tick decrements the countdown. Reaching zero finishes the attempt in the
// same critical section, so no observer sees remainingSec == 0 on an
// unfinished attempt.
func (m *Machine) tick(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	if m.remainingSec > 0 {
		m.remainingSec--
	}
	if m.remainingSec > 0 {
		m.armTickLocked(gen)
		m.broadcastLocked()
		m.mu.Unlock()
		return
	}
	m.finishLocked(ReasonTimeout)
	attemptCtx := m.ctx
	m.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(attemptCtx, m.cfg.FinalizeTimeout)
		defer cancel()
		m.finalize(ctx, gen)
	}()
}

// finishLocked is the one transition into StateFinished from StateActive.
// Every timer is cancelled before the forced write can be issued.
func (m *Machine) finishLocked(reason FinishReason) {
	m.stopTimersLocked()
	m.finished = true
	m.state = StateFinished
	m.reason = reason
	m.finalizing = true
	m.finalWrite = true
	m.broadcastLocked()
}

// finalize sends the final snapshot while it is still outstanding, then the
// idempotent finish call, and caches the result. Finish is only called once
// the server holds the final answers. Failures leave the attempt finished
// with its result pending, to be completed by RefreshResult.
func (m *Machine) finalize(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	id := m.attemptID
	if !m.net.Online() {
		m.finalizing = false
		m.resultPending = true
		m.broadcastLocked()
		m.mu.Unlock()
		m.log.Info("attempt finished offline, result pending", "attempt_id", id)
		return
	}
	m.finalizing = true
	inflight := m.saving
	write := m.finalWrite
	answers := m.answerListLocked()
	remaining := m.remainingSec
	capturedAt := m.clock.Now()
	m.broadcastLocked()
	m.mu.Unlock()

	// A write still in flight must settle first so the forced write is last.
	if inflight != nil {
		select {
		case <-inflight:
		case <-ctx.Done():
		}
	}

	if write {
		err := m.backend.SaveAttempt(ctx, id, answers, remaining)
		switch {
		case err == nil:
			m.recordSave(ctx, gen, id, capturedAt)
		case errors.Is(err, domain.ErrAttemptFinished):
			// Finished elsewhere; the stored result is the one to show.
		default:
			m.log.Warn("final write failed, result pending", "attempt_id", id, "trigger", triggerFinish, "error", err)
			m.mu.Lock()
			if m.gen == gen {
				m.finalizing = false
				m.resultPending = true
				m.saveStatus = SaveFailed
				m.broadcastLocked()
			}
			m.mu.Unlock()
			return
		}
		m.mu.Lock()
		if m.gen == gen {
			m.finalWrite = false
		}
		m.mu.Unlock()
	}

	result, err := m.backend.FinishAttempt(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.finalizing = false
	if err != nil {
		m.resultPending = true
		m.log.Warn("finalize failed, result pending", "attempt_id", id, "error", err)
	} else {
		m.result = &result
		m.resultPending = false
	}
	m.broadcastLocked()
}
