package model

// QuestionReference is the fixed, ordered prompt list of every part.
// Slice order is the presentation order. Treat as immutable once loaded.
type QuestionReference struct {
	Part1 []string `json:"part1" yaml:"part1"`
	Part2 []string `json:"part2" yaml:"part2"`
	Part3 []string `json:"part3" yaml:"part3"`
}

// Questions returns the prompts of part p, nil for an unknown part.
func (q QuestionReference) Questions(p Part) []string {
	switch p {
	case Part1:
		return q.Part1
	case Part2:
		return q.Part2
	case Part3:
		return q.Part3
	default:
		return nil
	}
}

// Count returns the number of prompts in part p.
func (q QuestionReference) Count(p Part) int {
	return len(q.Questions(p))
}

// LastIndex returns the index of the final prompt of part p, -1 if empty.
func (q QuestionReference) LastIndex(p Part) int {
	return q.Count(p) - 1
}

// Contains reports whether pos points at an existing prompt.
func (q QuestionReference) Contains(pos Position) bool {
	return pos.Part.Valid() && pos.QuestionIndex >= 0 && pos.QuestionIndex < q.Count(pos.Part)
}

// Prompt returns the prompt text at pos.
func (q QuestionReference) Prompt(pos Position) (string, bool) {
	if !q.Contains(pos) {
		return "", false
	}
	return q.Questions(pos.Part)[pos.QuestionIndex], true
}
