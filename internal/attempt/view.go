package attempt

import (
	"time"

	"timed-quiz-service/internal/domain"
)

// View is an immutable copy of the machine state for the presentation layer.
type View struct {
	State         State                   `json:"state"`
	AttemptID     string                  `json:"attemptId"`
	Questions     []domain.PublicQuestion `json:"questions"`
	Answers       []domain.Answer         `json:"answers"`
	RemainingSec  int                     `json:"remainingSec"`
	InitialSec    int                     `json:"initialSec"`
	IsFinished    bool                    `json:"isFinished"`
	Reason        FinishReason            `json:"reason,omitempty"`
	Finalizing    bool                    `json:"finalizing"`
	ResultPending bool                    `json:"resultPending"`
	Result        *domain.Result          `json:"result,omitempty"`
	SaveStatus    SaveStatus              `json:"saveStatus"`
	LastSavedAt   time.Time               `json:"lastSavedAt"`
	Err           error                   `json:"-"`
}

// Answer returns the selected index for questionID.
func (v View) Answer(questionID int) (int, bool) {
	for _, a := range v.Answers {
		if a.QuestionID == questionID {
			return a.SelectedIndex, true
		}
	}
	return 0, false
}

func (v View) AnsweredCount() int { return len(v.Answers) }

// View returns the current state.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Subscribe returns a channel that receives a View after every state change,
// starting with the current one. Slow readers only miss intermediate views.
// The caller must invoke the returned cancel function to avoid leaks.
func (m *Machine) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.subscribers[ch] = struct{}{}
	ch <- m.viewLocked()
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Machine) broadcastLocked() {
	if len(m.subscribers) == 0 {
		return
	}
	view := m.viewLocked()
	for ch := range m.subscribers {
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (m *Machine) viewLocked() View {
	questions := make([]domain.PublicQuestion, len(m.questions))
	copy(questions, m.questions)
	var result *domain.Result
	if m.result != nil {
		r := *m.result
		result = &r
	}
	return View{
		State:         m.state,
		AttemptID:     m.attemptID,
		Questions:     questions,
		Answers:       m.answerListLocked(),
		RemainingSec:  m.remainingSec,
		InitialSec:    m.initialSec,
		IsFinished:    m.finished,
		Reason:        m.reason,
		Finalizing:    m.finalizing,
		ResultPending: m.resultPending,
		Result:        result,
		SaveStatus:    m.saveStatus,
		LastSavedAt:   m.lastSaveAt,
		Err:           m.err,
	}
}

func (m *Machine) answerListLocked() []domain.Answer {
	answers := make([]domain.Answer, 0, len(m.answers))
	for questionID, index := range m.answers {
		answers = append(answers, domain.Answer{QuestionID: questionID, SelectedIndex: index})
	}
	domain.SortAnswers(answers)
	return answers
}
