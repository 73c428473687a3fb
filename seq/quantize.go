package seq

// QuantizeNotes snaps note starts and durations to multiples of grid, rounding
// halves up. Durations never drop below one grid unit. Quantizing twice gives
// the same result as quantizing once.
func QuantizeNotes(notes []Note, grid int64) []Note {
	out := make([]Note, len(notes))
	for i, n := range notes {
		n.Start = roundTo(n.Start, grid)
		n.Duration = max(roundTo(n.Duration, grid), grid)
		out[i] = n
	}
	sortNotes(out)
	return out
}

func roundTo(v, grid int64) int64 {
	if v < 0 {
		return 0
	}
	return (2*v + grid) / (2 * grid) * grid
}
