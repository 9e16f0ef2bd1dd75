package model

import "fmt"

// Part is one of the three sequential phases of the speaking test.
type Part int

const (
	Part1 Part = 1
	Part2 Part = 2
	Part3 Part = 3
)

// Parts lists every part in presentation order.
var Parts = []Part{Part1, Part2, Part3}

// Per-question time limits in seconds. Fixed, not user-adjustable.
const (
	Part1TimeLimit = 30
	Part2TimeLimit = 120
	Part3TimeLimit = 40
)

// Valid reports whether p names an existing part.
func (p Part) Valid() bool {
	return p >= Part1 && p <= Part3
}

// TimeLimit returns the allotted seconds for each question of the part.
func (p Part) TimeLimit() int {
	switch p {
	case Part1:
		return Part1TimeLimit
	case Part2:
		return Part2TimeLimit
	case Part3:
		return Part3TimeLimit
	default:
		return 0
	}
}

// Route is the client-side path for the part.
func (p Part) Route() string {
	return fmt.Sprintf("/test/%d", int(p))
}

func (p Part) String() string {
	return fmt.Sprintf("part%d", int(p))
}
