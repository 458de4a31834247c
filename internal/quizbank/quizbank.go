// Package quizbank holds the built-in question set used when no database is configured.
package quizbank

import "timed-quiz-service/internal/domain"

// DefaultID names the built-in quiz.
const DefaultID = "default"

// DefaultDurationSec is the countdown budget of the built-in quiz.
const DefaultDurationSec = 60

// Default returns the built-in 10-question quiz.
func Default() domain.Quiz {
	return domain.Quiz{
		ID:          DefaultID,
		DurationSec: DefaultDurationSec,
		Questions: []domain.Question{
			{ID: 1, Body: "2 + 2 = ?", Options: []string{"1", "2", "3", "4"}, CorrectIndex: 3},
			{ID: 2, Body: "Capital of Kazakhstan?", Options: []string{"Almaty", "Astana", "Shymkent", "Karaganda"}, CorrectIndex: 1},
			{ID: 3, Body: "How many days are in a year?", Options: []string{"364", "365", "366", "367"}, CorrectIndex: 1},
			{ID: 4, Body: "Which language runs in web browsers?", Options: []string{"Python", "JavaScript", "Java", "C++"}, CorrectIndex: 1},
			{ID: 5, Body: "Capital of Russia?", Options: []string{"Saint Petersburg", "Moscow", "Novosibirsk", "Yekaterinburg"}, CorrectIndex: 1},
			{ID: 6, Body: "How many planets are in the solar system?", Options: []string{"7", "8", "9", "10"}, CorrectIndex: 1},
			{ID: 7, Body: "Which is the largest ocean?", Options: []string{"Atlantic", "Indian", "Arctic", "Pacific"}, CorrectIndex: 3},
			{ID: 8, Body: "In which year was Google founded?", Options: []string{"1996", "1998", "2000", "2002"}, CorrectIndex: 1},
			{ID: 9, Body: "How many minutes are in an hour?", Options: []string{"50", "60", "70", "80"}, CorrectIndex: 1},
			{ID: 10, Body: "What is the chemical symbol for gold?", Options: []string{"Go", "Gd", "Au", "Ag"}, CorrectIndex: 2},
		},
	}
}
