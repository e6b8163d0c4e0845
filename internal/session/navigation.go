package session

import "github.com/huynhthien07/lingo/internal/exam"

// Position locates the current question in both coordinate systems the UI
// needs: the flat linear index driving "question N of M", and the
// (section, question-in-section) pair driving section tabs. Both are derived
// from the single linear cursor, so they cannot disagree.
type Position struct {
	Index     int // linear, 0-based
	Section   int // index into Test.Sections
	InSection int // question index within that section
}

type flatEntry struct {
	q         exam.Question
	section   int
	inSection int
}

// Navigator flattens the section→question hierarchy once at construction
// (the order is fixed for the attempt's lifetime) and moves a single linear
// cursor over it. All moves clamp; nothing wraps.
type Navigator struct {
	sections []exam.Section
	flat     []flatEntry
	byID     map[string]int
	// first flat index per section, or -1 for a section with no questions
	sectionStart []int
	cur          int
}

func NewNavigator(sections []exam.Section) *Navigator {
	n := &Navigator{
		sections:     sections,
		byID:         map[string]int{},
		sectionStart: make([]int, len(sections)),
	}
	for si, sec := range sections {
		if len(sec.Questions) == 0 {
			n.sectionStart[si] = -1
			continue
		}
		n.sectionStart[si] = len(n.flat)
		for qi, q := range sec.Questions {
			n.byID[q.ID] = len(n.flat)
			n.flat = append(n.flat, flatEntry{q: q, section: si, inSection: qi})
		}
	}
	return n
}

// Len is the flattened question count across all sections.
func (n *Navigator) Len() int { return len(n.flat) }

// Current returns the question under the cursor. ok is false only for a
// test with zero questions.
func (n *Navigator) Current() (exam.Question, Position, bool) {
	if len(n.flat) == 0 {
		return exam.Question{}, Position{}, false
	}
	e := n.flat[n.cur]
	return e.q, Position{Index: n.cur, Section: e.section, InSection: e.inSection}, true
}

// CurrentSection is the section the cursor sits in; -1 for an empty test.
func (n *Navigator) CurrentSection() int {
	if len(n.flat) == 0 {
		return -1
	}
	return n.flat[n.cur].section
}

// QuestionAt resolves a linear index without moving the cursor.
func (n *Navigator) QuestionAt(i int) (exam.Question, bool) {
	if i < 0 || i >= len(n.flat) {
		return exam.Question{}, false
	}
	return n.flat[i].q, true
}

// GoToIndex clamps i into range and moves the cursor there.
func (n *Navigator) GoToIndex(i int) Position {
	if len(n.flat) == 0 {
		return Position{}
	}
	if i < 0 {
		i = 0
	}
	if i >= len(n.flat) {
		i = len(n.flat) - 1
	}
	n.cur = i
	_, pos, _ := n.Current()
	return pos
}

// GoToQuestionID jumps to the question with the given id; unknown ids leave
// the cursor where it is.
func (n *Navigator) GoToQuestionID(id string) (Position, bool) {
	i, ok := n.byID[id]
	if !ok {
		_, pos, _ := n.Current()
		return pos, false
	}
	return n.GoToIndex(i), true
}

// GoToSection jumps to the first question of section si. A section with no
// questions contributes nothing to the flat order, so the jump lands on the
// first question of the next non-empty section; if there is none, the move
// is a no-op.
func (n *Navigator) GoToSection(si int) Position {
	if len(n.flat) == 0 || si < 0 || si >= len(n.sectionStart) {
		_, pos, _ := n.Current()
		return pos
	}
	for ; si < len(n.sectionStart); si++ {
		if start := n.sectionStart[si]; start >= 0 {
			return n.GoToIndex(start)
		}
	}
	_, pos, _ := n.Current()
	return pos
}

// Next advances the cursor by one, clamped at the last question. Crossing a
// section boundary is implicit: the section follows the linear index.
func (n *Navigator) Next() Position { return n.GoToIndex(n.cur + 1) }

// Prev moves the cursor back by one, clamped at zero.
func (n *Navigator) Prev() Position { return n.GoToIndex(n.cur - 1) }
