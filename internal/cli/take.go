package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/attempt"
	"timed-quiz-service/internal/client"
	"timed-quiz-service/internal/config"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/memory"
	"timed-quiz-service/internal/infra/sqlite"

	"github.com/spf13/cobra"
)

const takeHelp = `commands:
  <question> <option>  answer a question, e.g. "3 b" or "3 2"
  questions            list the questions again
  status               show time left and answers
  submit               finish the attempt now
  refresh              fetch a pending result
  retry                reload after a failed load
  new                  abandon this attempt and start over
  quit                 leave; the attempt resumes next time`

// NewTakeCmd runs an attempt in the terminal.
func NewTakeCmd(configPath *string) *cobra.Command {
	var (
		local     bool
		statePath string
		fresh     bool
	)
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take the quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if statePath != "" {
				cfg.Client.StatePath = statePath
			}
			return runTake(cmd.Context(), cfg, local, fresh, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "run against an in-process service instead of the server")
	cmd.Flags().StringVar(&statePath, "state", "", "path of the device state file (overrides client.state_path)")
	cmd.Flags().BoolVar(&fresh, "new", false, "discard the stored attempt and start a new one")
	return cmd
}

func machineConfig(cfg config.Config) attempt.Config {
	mc := attempt.DefaultConfig()
	mc.PeriodicInterval = config.TTLDuration(cfg.Client.PeriodicSync, mc.PeriodicInterval)
	mc.DebounceDelay = config.TTLDuration(cfg.Client.Debounce, mc.DebounceDelay)
	return mc
}

func runTake(ctx context.Context, cfg config.Config, local, fresh bool, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := newLogger(cfg, os.Stderr)

	state, err := sqlite.NewLocalState(cfg.Client.StatePath)
	if err != nil {
		return fmt.Errorf("open device state: %w", err)
	}
	defer state.Close()

	var (
		backend      attempt.Backend
		connectivity attempt.Connectivity = attempt.AlwaysOnline
		monitor      *client.Monitor
	)
	if local {
		quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(builtinQuiz(cfg)), time.Hour)
		backend = app.NewQuizService(cfg.Quiz.ID, quizRepo, memory.NewAttemptStore(), app.WithLogger(log))
	} else {
		httpBackend := client.NewBackend(cfg.Client.BaseURL, config.TTLDuration(cfg.Client.RequestTimeout, 5*time.Second))
		backend = httpBackend
		monitor = client.NewMonitor(httpBackend,
			config.TTLDuration(cfg.Client.ProbeInterval, 3*time.Second),
			client.WithMonitorLogger(log))
		connectivity = monitor
	}

	machine := attempt.New(backend, state, connectivity,
		attempt.WithLogger(log),
		attempt.WithConfig(machineConfig(cfg)))
	defer machine.Close()

	if monitor != nil {
		monitor.OnChange(func(online bool) {
			if online {
				go func() { _, _ = machine.RefreshResult(ctx) }()
			}
		})
		monitor.Start(ctx)
		defer monitor.Stop()
	}

	return runSession(ctx, machine, fresh, in, out)
}

// runSession drives a started machine from line-oriented input until quit or EOF.
func runSession(ctx context.Context, machine *attempt.Machine, fresh bool, in io.Reader, out io.Writer) error {
	ui := &takeUI{machine: machine, out: out}

	views, cancel := machine.Subscribe()
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		for v := range views {
			ui.onView(v)
		}
	}()
	defer func() {
		cancel()
		<-renderDone
	}()

	var err error
	if fresh {
		err = machine.NewAttempt(ctx)
	} else {
		err = machine.Start(ctx)
	}
	ui.startResult(machine.View(), err)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if quit := ui.handle(ctx, scanner.Text()); quit {
			return nil
		}
	}
	return scanner.Err()
}

// takeUI renders views as plain text. Output from the render goroutine and
// from command handling is serialized on mu.
type takeUI struct {
	machine *attempt.Machine
	out     io.Writer

	mu             sync.Mutex
	lastState      attempt.State
	lastAttempt    string
	lastRemaining  int
	shownQuestions string
	shownResult    string
	shownPending   string
}

func (u *takeUI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(u.out, format, args...)
}

func (u *takeUI) startResult(v attempt.View, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err == nil {
		u.renderLocked(v)
		return
	}
	u.printf("could not load the attempt: %v\ntype \"retry\" to try again\n", err)
}

func (u *takeUI) onView(v attempt.View) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.renderLocked(v)
}

func (u *takeUI) renderLocked(v attempt.View) {
	changed := v.State != u.lastState || v.AttemptID != u.lastAttempt
	u.lastState = v.State
	u.lastAttempt = v.AttemptID

	switch v.State {
	case attempt.StateActive:
		if u.shownQuestions != v.AttemptID {
			u.shownQuestions = v.AttemptID
			u.printf("attempt %s, %d questions, %s left\n", v.AttemptID, len(v.Questions), formatRemaining(v.RemainingSec))
			writeQuestions(u.out, v)
			u.printf("type \"help\" for commands\n")
			u.lastRemaining = v.RemainingSec
			return
		}
		if v.RemainingSec != u.lastRemaining {
			u.lastRemaining = v.RemainingSec
			if v.RemainingSec%15 == 0 || v.RemainingSec <= 5 {
				u.printf("%s left\n", formatRemaining(v.RemainingSec))
			}
		}
	case attempt.StateFinished:
		if changed {
			u.printf("%s\n", finishMessage(v.Reason))
		}
		u.resultLocked(v)
	case attempt.StateErrored:
		if changed && v.Err != nil {
			u.printf("error: %v\ntype \"retry\" to try again\n", v.Err)
		}
	}
}

func (u *takeUI) resultLocked(v attempt.View) {
	switch {
	case v.Result != nil && u.shownResult != v.AttemptID:
		u.shownResult = v.AttemptID
		writeResult(u.out, *v.Result)
	case v.Result == nil && v.ResultPending && u.shownPending != v.AttemptID:
		u.shownPending = v.AttemptID
		u.printf("your answers are locked in; the result will be fetched when the service is reachable (\"refresh\")\n")
	}
}

// handle executes one input line and reports whether the session should end.
func (u *takeUI) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "help":
		u.say(takeHelp + "\n")
	case "questions":
		u.mu.Lock()
		writeQuestions(u.out, u.machine.View())
		u.mu.Unlock()
	case "status":
		u.mu.Lock()
		writeStatus(u.out, u.machine.View())
		u.mu.Unlock()
	case "submit":
		v, err := u.machine.Submit(ctx)
		u.afterFinish(v, err)
	case "refresh":
		v, err := u.machine.RefreshResult(ctx)
		u.afterFinish(v, err)
	case "retry":
		if err := u.machine.Retry(ctx); err != nil {
			u.say(fmt.Sprintf("retry failed: %v\n", err))
		}
	case "new":
		if err := u.machine.NewAttempt(ctx); err != nil {
			u.say(fmt.Sprintf("could not start a new attempt: %v\n", err))
		}
	default:
		questionID, index, err := parseSelection(fields)
		if err != nil {
			u.say(err.Error() + "\n")
			return false
		}
		if err := u.machine.SelectAnswer(questionID, index); err != nil {
			u.say(selectionError(err) + "\n")
		}
	}
	return false
}

func (u *takeUI) afterFinish(v attempt.View, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.printf("%v\n", err)
		return
	}
	u.renderLocked(v)
}

func (u *takeUI) say(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.printf("%s", msg)
}

// parseSelection reads "<question> <option>" where option is a letter (a, b,
// ...) or a 1-based number, returning the 0-based option index.
func parseSelection(fields []string) (int, int, error) {
	if len(fields) != 2 {
		return 0, 0, errors.New(`unknown command, type "help"`)
	}
	questionID, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, errors.New(`unknown command, type "help"`)
	}
	opt := fields[1]
	if len(opt) == 1 && opt[0] >= 'a' && opt[0] <= 'z' {
		return questionID, int(opt[0] - 'a'), nil
	}
	n, err := strconv.Atoi(opt)
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("invalid option %q", fields[1])
	}
	return questionID, n - 1, nil
}

func selectionError(err error) string {
	switch {
	case errors.Is(err, domain.ErrAttemptFinished):
		return "the attempt is finished; answers can no longer change"
	case errors.Is(err, attempt.ErrNotActive):
		return "the attempt is not running"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return "no such question"
	case errors.Is(err, domain.ErrOptionOutOfRange):
		return "no such option"
	default:
		return err.Error()
	}
}

func writeQuestions(w io.Writer, v attempt.View) {
	for _, q := range v.Questions {
		marker := " "
		selected, answered := v.Answer(q.ID)
		if answered {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%2d. %s\n", marker, q.ID, q.Body)
		for i, opt := range q.Options {
			chosen := " "
			if answered && selected == i {
				chosen = ">"
			}
			fmt.Fprintf(w, "    %s %c) %s\n", chosen, 'a'+i, opt)
		}
	}
}

func writeStatus(w io.Writer, v attempt.View) {
	fmt.Fprintf(w, "attempt %s: %s, %s left, %d/%d answered, last sync %s",
		v.AttemptID, v.State, formatRemaining(v.RemainingSec), v.AnsweredCount(), len(v.Questions), v.SaveStatus)
	if !v.LastSavedAt.IsZero() {
		fmt.Fprintf(w, " at %s", v.LastSavedAt.Local().Format(time.TimeOnly))
	}
	fmt.Fprintln(w)
}

func writeResult(w io.Writer, r domain.Result) {
	fmt.Fprintf(w, "result: %d correct (%d%%), %d incorrect (%d%%), %d unanswered, %d questions\n",
		r.CorrectCount, r.CorrectPercentage,
		r.IncorrectCount, r.IncorrectPercentage,
		r.UnansweredCount, r.TotalQuestions)
}

func finishMessage(reason attempt.FinishReason) string {
	switch reason {
	case attempt.ReasonSubmitted:
		return "attempt submitted"
	case attempt.ReasonTimeout:
		return "time is up"
	case attempt.ReasonExpired:
		return "time ran out while you were away"
	case attempt.ReasonRecovered:
		return "this attempt was already finished"
	default:
		return "attempt finished"
	}
}

func formatRemaining(sec int) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
