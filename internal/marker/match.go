package marker

import (
	"math"
)

// MatchContours pairs red markers with green markers. It is a single greedy
// pass: each red marker, in input order, takes the unconsumed green marker
// whose rotated-rect angle is closest to its own, breaking ties by the sum
// of area and perimeter differences. Only greens the distance policy accepts
// are considered. Each marker ends up in at most one pair; reds without an
// eligible partner are left out.
func MatchContours(reds, greens []ContourInfo, policy DistancePolicy) []ContourPair {
	var pairs []ContourPair
	usedGreen := make([]bool, len(greens))

	for _, red := range reds {
		best := -1
		bestAngle := math.Inf(1)
		bestScore := math.Inf(1)

		for j, green := range greens {
			if usedGreen[j] {
				continue
			}
			if !policy.Eligible(red, green) {
				continue
			}

			angleDiff := math.Abs(red.Angle - green.Angle)
			score := math.Abs(red.Area-green.Area) + math.Abs(red.Perimeter-green.Perimeter)

			if angleDiff < bestAngle || (angleDiff == bestAngle && score < bestScore) {
				best = j
				bestAngle = angleDiff
				bestScore = score
			}
		}

		if best >= 0 {
			usedGreen[best] = true
			pairs = append(pairs, ContourPair{Red: red, Green: greens[best]})
		}
	}
	return pairs
}
