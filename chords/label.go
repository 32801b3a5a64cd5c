package chords

import (
	"fmt"
	"strings"
)

// Label is a chord from the fixed recognition vocabulary.
type Label string

const (
	C  Label = "C"
	D  Label = "D"
	Dm Label = "Dm"
	E  Label = "E"
	Em Label = "Em"
	F  Label = "F"
	G  Label = "G"
	A  Label = "A"
	Am Label = "Am"
	Bm Label = "Bm"
)

// vocabulary is in declaration order. Model outputs and tie-breaking follow
// this order.
var vocabulary = [...]Label{C, D, Dm, E, Em, F, G, A, Am, Bm}

// NumLabels is the size of the vocabulary.
const NumLabels = len(vocabulary)

var roots = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// Vocabulary returns the labels in declaration order.
func Vocabulary() []Label {
	out := make([]Label, NumLabels)
	copy(out, vocabulary[:])
	return out
}

// LabelAt returns the label at vocabulary index i.
func LabelAt(i int) (Label, error) {
	if i < 0 || i >= NumLabels {
		return "", fmt.Errorf("label index %d out of range [0, %d)", i, NumLabels)
	}
	return vocabulary[i], nil
}

// ParseLabel validates s against the vocabulary. Surrounding whitespace is
// ignored and matching is case sensitive.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.TrimSpace(s))
	if l.Index() < 0 {
		return "", fmt.Errorf("unknown chord label %q", s)
	}
	return l, nil
}

// Index returns the vocabulary position of l, or -1.
func (l Label) Index() int {
	for i, v := range vocabulary {
		if v == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is in the vocabulary.
func (l Label) Valid() bool {
	return l.Index() >= 0
}

// Root returns the pitch class of the chord root (0=C ... 11=B), or -1.
func (l Label) Root() int {
	if !l.Valid() {
		return -1
	}
	return roots[l[0]]
}

// Minor reports whether l is a minor triad.
func (l Label) Minor() bool {
	return l.Valid() && strings.HasSuffix(string(l), "m")
}

func (l Label) String() string {
	return string(l)
}
