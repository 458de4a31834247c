package attempt

import (
	"context"
	"time"

	"timed-quiz-service/internal/domain"
)

const (
	triggerPeriodic = "periodic"
	triggerDebounce = "debounce"
	triggerFinish   = "finish"
)

func (m *Machine) armPeriodicLocked(gen uint64) {
	m.periodicTimer = m.clock.AfterFunc(m.cfg.PeriodicInterval, func() { m.periodic(gen) })
}

func (m *Machine) periodic(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.armPeriodicLocked(gen)
	m.mu.Unlock()
	m.sync(gen, triggerPeriodic)
}

// restartDebounceLocked replaces the pending debounced write with one that
// fires after a full quiet period.
func (m *Machine) restartDebounceLocked(gen uint64) {
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceSeq++
	seq := m.debounceSeq
	m.debounceTimer = m.clock.AfterFunc(m.cfg.DebounceDelay, func() { m.debounced(gen, seq) })
}

func (m *Machine) debounced(gen, seq uint64) {
	m.mu.Lock()
	if m.debounceSeq != seq {
		m.mu.Unlock()
		return
	}
	m.debounceTimer = nil
	m.mu.Unlock()
	m.sync(gen, triggerDebounce)
}

func (m *Machine) stopTimersLocked() {
	if m.tickTimer != nil {
		m.tickTimer.Stop()
		m.tickTimer = nil
	}
	if m.periodicTimer != nil {
		m.periodicTimer.Stop()
		m.periodicTimer = nil
	}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.debounceSeq++
}

// sync writes the current snapshot unless the attempt is offline or another
// write is still in flight. Skipped writes are not queued; the next
// scheduled sync supersedes them.
func (m *Machine) sync(gen uint64, trigger string) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	id := m.attemptID
	if !m.net.Online() {
		m.mu.Unlock()
		m.log.Debug("sync skipped while offline", "attempt_id", id, "trigger", trigger)
		return
	}
	if m.saving != nil {
		m.mu.Unlock()
		m.log.Debug("sync skipped, write in flight", "attempt_id", id, "trigger", trigger)
		return
	}
	done := make(chan struct{})
	m.saving = done
	m.saveStatus = SaveSaving
	answers := m.answerListLocked()
	remaining := m.remainingSec
	capturedAt := m.clock.Now()
	ctx := m.ctx
	m.broadcastLocked()
	m.mu.Unlock()

	go m.write(ctx, gen, done, id, answers, remaining, capturedAt, trigger)
}

func (m *Machine) write(ctx context.Context, gen uint64, done chan struct{}, id string, answers []domain.Answer, remaining int, capturedAt time.Time, trigger string) {
	defer close(done)

	err := m.backend.SaveAttempt(ctx, id, answers, remaining)
	if err == nil {
		m.recordSave(ctx, gen, id, capturedAt)
	} else {
		m.log.Warn("sync write failed", "attempt_id", id, "trigger", trigger, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saving == done {
		m.saving = nil
	}
	if m.gen != gen {
		return
	}
	if err != nil {
		m.saveStatus = SaveFailed
	} else {
		m.saveStatus = SaveSaved
	}
	m.broadcastLocked()
}

// recordSave moves the last-save anchor forward and persists it on the
// device; reconciliation measures time away from this instant.
func (m *Machine) recordSave(ctx context.Context, gen uint64, id string, capturedAt time.Time) {
	m.mu.Lock()
	if m.gen != gen || !capturedAt.After(m.lastSaveAt) {
		m.mu.Unlock()
		return
	}
	m.lastSaveAt = capturedAt
	m.mu.Unlock()

	if err := m.local.SetLastSave(context.WithoutCancel(ctx), id, capturedAt); err != nil {
		m.log.Warn("persist local last-save timestamp", "attempt_id", id, "error", err)
	}
}
