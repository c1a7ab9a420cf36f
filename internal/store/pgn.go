package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
)

func resultToPGN(result domain.Result) string {
	switch result {
	case domain.WhiteWin:
		return "1-0"
	case domain.BlackWin:
		return "0-1"
	case domain.Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders a finished game from its persisted move notations.
func BuildPGN(g *domain.Game, moves []*domain.Move, outcome domain.Outcome) string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	date := outcome.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	pgnResult := resultToPGN(outcome.Result)
	event := "Casual Game"
	if g.Ranked {
		event = "Ranked Game"
	}
	b.WriteString(fmt.Sprintf("[Event \"%s\"]\n", event))
	b.WriteString("[Site \"cheese-lobby\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%d\"]\n", g.WhiteID))
	b.WriteString(fmt.Sprintf("[Black \"%d\"]\n", g.BlackID))
	if g.Time.Timed() {
		b.WriteString(fmt.Sprintf("[TimeControl \"%d+%d\"]\n", g.Time.InitialSec, g.Time.IncrementSec))
	}
	if outcome.Reason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(outcome.Reason))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	// white moves open a numbered pair
	for i, mv := range moves {
		if mv.Color == domain.White || i == 0 {
			b.WriteString(fmt.Sprintf("%d. ", i/2+1))
		}
		b.WriteString(sanitizePGN(mv.Notation))
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
