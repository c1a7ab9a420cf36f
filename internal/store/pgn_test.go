package store

import (
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
)

func TestBuildPGN(t *testing.T) {
	g := &domain.Game{ID: 3, WhiteID: 10, BlackID: 20, Ranked: true, Time: domain.TimeSettings{InitialSec: 600, IncrementSec: 5}}
	moves := []*domain.Move{
		{Seq: 1, Color: domain.White, Notation: "e4"},
		{Seq: 2, Color: domain.Black, Notation: "e5"},
		{Seq: 3, Color: domain.White, Notation: "Qh5"},
	}
	out := domain.Outcome{Result: domain.WhiteWin, Reason: domain.ReasonResign, EndedAt: time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)}
	pgn := BuildPGN(g, moves, out)

	for _, want := range []string{
		`[Event "Ranked Game"]`,
		`[Date "2025.03.09"]`,
		`[White "10"]`,
		`[Black "20"]`,
		`[TimeControl "600+5"]`,
		`[Termination "resignation"]`,
		`[Result "1-0"]`,
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %s:\n%s", want, pgn)
		}
	}
	if !strings.HasSuffix(pgn, "1. e4 e5 2. Qh5 1-0") {
		t.Fatalf("unexpected movetext:\n%s", pgn)
	}
}

func TestBuildPGNUnfinished(t *testing.T) {
	pgn := BuildPGN(&domain.Game{WhiteID: 1, BlackID: 2}, nil, domain.Outcome{})
	if !strings.Contains(pgn, `[Event "Casual Game"]`) || !strings.HasSuffix(pgn, "*") {
		t.Fatalf("unexpected pgn:\n%s", pgn)
	}
	if strings.Contains(pgn, "TimeControl") {
		t.Fatalf("untimed game must not carry TimeControl")
	}
	if BuildPGN(nil, nil, domain.Outcome{}) != "" {
		t.Fatalf("nil game must render empty")
	}
}
