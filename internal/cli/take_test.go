package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/attempt"
	"timed-quiz-service/internal/infra/memory"
	"timed-quiz-service/internal/quizbank"
)

func newLocalMachine(t *testing.T, local *memory.LocalState) *attempt.Machine {
	t.Helper()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizbank.Default()), time.Minute)
	service := app.NewQuizService(quizbank.DefaultID, quizRepo, memory.NewAttemptStore())
	machine := attempt.New(service, local, attempt.AlwaysOnline)
	t.Cleanup(machine.Close)
	return machine
}

func TestSessionAnswersAndSubmits(t *testing.T) {
	machine := newLocalMachine(t, memory.NewLocalState())
	input := strings.NewReader("1 d\n2 2\n9 a\n3 z\nfoo\nsubmit\n4 a\nquit\n")
	var out bytes.Buffer

	if err := runSession(context.Background(), machine, false, input, &out); err != nil {
		t.Fatalf("session: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"10 questions, 1:00 left",
		"no such question",
		"no such option",
		`unknown command, type "help"`,
		"attempt submitted",
		"result: 2 correct (20%), 0 incorrect (0%), 8 unanswered, 10 questions",
		"answers can no longer change",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
	if strings.Count(text, "result:") != 1 {
		t.Fatalf("result must be printed once:\n%s", text)
	}
}

func TestSessionNewAttemptReplacesStoredOne(t *testing.T) {
	local := memory.NewLocalState()
	_ = local.SetAttemptID(context.Background(), "attempt-old")
	machine := newLocalMachine(t, local)
	var out bytes.Buffer

	if err := runSession(context.Background(), machine, true, strings.NewReader("status\n"), &out); err != nil {
		t.Fatalf("session: %v", err)
	}
	id := machine.AttemptID()
	if id == "attempt-old" || !strings.HasPrefix(id, "attempt-") {
		t.Fatalf("expected a freshly minted attempt id, got %q", id)
	}
	if !strings.Contains(out.String(), "attempt "+id+": active") {
		t.Fatalf("expected status line for the new attempt:\n%s", out.String())
	}
}

func TestParseSelection(t *testing.T) {
	cases := []struct {
		in       string
		question int
		index    int
		ok       bool
	}{
		{"3 b", 3, 1, true},
		{"3 2", 3, 1, true},
		{"10 a", 10, 0, true},
		{"3 0", 0, 0, false},
		{"x b", 0, 0, false},
		{"3", 0, 0, false},
		{"3 b c", 0, 0, false},
	}
	for _, tc := range cases {
		q, i, err := parseSelection(strings.Fields(tc.in))
		if (err == nil) != tc.ok || q != tc.question || i != tc.index {
			t.Fatalf("%q: got %d %d %v", tc.in, q, i, err)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	if got := formatRemaining(65); got != "1:05" {
		t.Fatalf("expected 1:05, got %s", got)
	}
	if got := formatRemaining(0); got != "0:00" {
		t.Fatalf("expected 0:00, got %s", got)
	}
}
