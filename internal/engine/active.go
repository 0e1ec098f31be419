package engine

import "time"

// FilterActive returns the deals that pass the active predicate at now.
// The store already applies the predicate in SQL; this re-check keeps the
// contract honest against alternative DealSource implementations and against
// deals whose window closed between query and ranking.
func FilterActive(deals []Deal, now time.Time) []Deal {
	out := deals[:0]
	for _, d := range deals {
		if d.IsActive(now) {
			out = append(out, d)
		}
	}
	return out
}

// FilterActiveWithDistance is FilterActive for distance-annotated deals.
func FilterActiveWithDistance(deals []DealWithDistance, now time.Time) []DealWithDistance {
	out := deals[:0]
	for _, d := range deals {
		if d.IsActive(now) {
			out = append(out, d)
		}
	}
	return out
}
