// Package scoring computes attempt results against the canonical answer key.
package scoring

import (
	"math"

	"timed-quiz-service/internal/domain"
)

// Score counts correct, incorrect and unanswered questions. Answers for
// questions outside the set are ignored; a question answered more than once
// counts only its last answer.
func Score(questions []domain.Question, answers []domain.Answer) domain.Result {
	key := make(map[int]int, len(questions))
	for _, q := range questions {
		key[q.ID] = q.CorrectIndex
	}

	selected := make(map[int]int, len(answers))
	for _, a := range answers {
		if _, ok := key[a.QuestionID]; ok {
			selected[a.QuestionID] = a.SelectedIndex
		}
	}

	total := len(questions)
	correct := 0
	for questionID, index := range selected {
		if key[questionID] == index {
			correct++
		}
	}
	answered := len(selected)
	incorrect := answered - correct

	return domain.Result{
		TotalQuestions:      total,
		TotalAnswered:       answered,
		CorrectCount:        correct,
		IncorrectCount:      incorrect,
		CorrectPercentage:   percentage(correct, total),
		IncorrectPercentage: percentage(incorrect, total),
		UnansweredCount:     total - answered,
	}
}

// percentage rounds half to even, so 12.5 becomes 12.
func percentage(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.RoundToEven(float64(count) / float64(total) * 100))
}
