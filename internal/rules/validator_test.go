package rules

import (
	"testing"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"

func TestCheckMoveAcceptsSANAndUCI(t *testing.T) {
	v := New()

	fen, err := v.CheckMove("", "e4", afterE4)
	require.NoError(t, err)
	assert.Equal(t, fenCore(afterE4), fenCore(fen))

	// clocks and en passant fields are not compared
	_, err = v.CheckMove(StartFEN, "e2e4", "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	require.NoError(t, err)

	_, err = v.CheckMove(StartFEN, "Nf3", "")
	require.NoError(t, err)
}

func TestCheckMoveRejects(t *testing.T) {
	v := New()

	_, err := v.CheckMove(StartFEN, "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = v.CheckMove(StartFEN, "  ", "")
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = v.CheckMove(StartFEN, "e4", StartFEN)
	assert.ErrorIs(t, err, ErrPositionMismatch)

	_, err = v.CheckMove("not a fen", "e4", "")
	assert.ErrorIs(t, err, ErrBadPosition)
}

func TestCheckTerminal(t *testing.T) {
	v := New()
	fen := StartFEN
	for _, mv := range []string{"f3", "e5", "g4", "Qh4"} {
		next, err := v.CheckMove(fen, mv, "")
		require.NoError(t, err, mv)
		fen = next
	}

	assert.NoError(t, v.CheckTerminal(fen, domain.BlackWin))
	assert.ErrorIs(t, v.CheckTerminal(fen, domain.WhiteWin), ErrNotTerminal)
	assert.ErrorIs(t, v.CheckTerminal(StartFEN, domain.Draw), ErrNotTerminal)
	assert.ErrorIs(t, v.CheckTerminal(fen, domain.Result("bogus")), ErrNotTerminal)

	stalemate := "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	assert.NoError(t, v.CheckTerminal(stalemate, domain.Draw))
}
