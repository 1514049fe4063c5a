package domain

// Signal is one algo's vote for a symbol at a point in time. Signals are
// ephemeral: they live on the symbol state until an order attempt (or a
// reset-signals pass) clears them.
type Signal struct {
	Algo      string
	Type      string
	Side      Side
	Weighting float64
}

// SumWeightings adds up the weightings of every signal on the given side.
func SumWeightings(signals []Signal, side Side) float64 {
	var total float64
	for _, sig := range signals {
		if sig.Side == side {
			total += sig.Weighting
		}
	}
	return total
}

// CountByTypeAndSide counts signals matching both a sub-type and a side.
// Used by the signal-restriction cap.
func CountByTypeAndSide(signals []Signal, typ string, side Side) int {
	var n int
	for _, sig := range signals {
		if sig.Type == typ && sig.Side == side {
			n++
		}
	}
	return n
}
