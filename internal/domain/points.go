package domain

const (
	WinPoints  = 3
	DrawPoints = 1
)

// PointDeltas returns the fixed ranked deltas (white, black); unranked games score nothing.
func PointDeltas(result Result, ranked bool) (int, int) {
	if !ranked {
		return 0, 0
	}
	switch result {
	case WhiteWin:
		return WinPoints, 0
	case BlackWin:
		return 0, WinPoints
	case Draw:
		return DrawPoints, DrawPoints
	default:
		return 0, 0
	}
}

// StatOutcomes maps a result to the (white, black) stat buckets.
func StatOutcomes(result Result) (StatOutcome, StatOutcome) {
	switch result {
	case WhiteWin:
		return StatWin, StatLoss
	case BlackWin:
		return StatLoss, StatWin
	default:
		return StatDraw, StatDraw
	}
}

// NewOutcome builds the outcome for a game, applying ranked deltas.
func NewOutcome(g *Game, result Result, reason EndReason) Outcome {
	w, b := PointDeltas(result, g.Ranked)
	return Outcome{Result: result, Reason: reason, WhiteDelta: w, BlackDelta: b}
}
