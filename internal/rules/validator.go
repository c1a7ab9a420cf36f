package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-lobby/internal/domain"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrBadPosition      = errors.New("invalid position")
	ErrIllegalMove      = errors.New("illegal move")
	ErrPositionMismatch = errors.New("submitted position does not follow from the move")
	ErrNotTerminal      = errors.New("position does not support the claimed result")
)

// Validator replays client-submitted moves on the server. Clients are trusted by
// default; the coordinator only consults a Validator when strict moves are enabled.
type Validator struct{}

func New() *Validator { return &Validator{} }

func load(fen string) (*nchess.Game, error) {
	if strings.TrimSpace(fen) == "" {
		fen = StartFEN
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return nchess.NewGame(opt), nil
}

// CheckMove applies move (UCI or SAN) to prevFEN and requires the result to match
// claimedFEN on piece placement and side to move. It returns the normalised FEN.
func (v *Validator) CheckMove(prevFEN, move, claimedFEN string) (string, error) {
	game, err := load(prevFEN)
	if err != nil {
		return "", err
	}
	raw := strings.TrimSpace(move)
	if raw == "" {
		return "", ErrIllegalMove
	}
	if err := game.PushNotationMove(strings.ToLower(raw), nchess.UCINotation{}, nil); err != nil {
		if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
			return "", fmt.Errorf("%w: %s", ErrIllegalMove, raw)
		}
	}
	got := game.FEN()
	if strings.TrimSpace(claimedFEN) != "" && fenCore(got) != fenCore(claimedFEN) {
		return "", ErrPositionMismatch
	}
	return got, nil
}

// CheckTerminal verifies that fen ends the game with result: a win needs the loser
// checkmated, a draw needs a drawn position.
func (v *Validator) CheckTerminal(fen string, result domain.Result) error {
	game, err := load(fen)
	if err != nil {
		return err
	}
	want := map[domain.Result]nchess.Outcome{
		domain.WhiteWin: nchess.WhiteWon,
		domain.BlackWin: nchess.BlackWon,
		domain.Draw:     nchess.Draw,
	}[result]
	if want == "" || game.Outcome() != want {
		return ErrNotTerminal
	}
	return nil
}

// fenCore keeps piece placement and side to move.
func fenCore(fen string) string {
	f := strings.Fields(fen)
	if len(f) < 2 {
		return strings.TrimSpace(fen)
	}
	return f[0] + " " + f[1]
}
