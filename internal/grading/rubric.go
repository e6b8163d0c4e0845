package grading

import "fmt"

// Rubric is a criterion breakdown a teacher fills in when grading writing or
// speaking answers. Awarded points are clamped per criterion and in total.
type Rubric struct {
	Criteria []Criterion `json:"criteria"`
	Max      float64     `json:"max_points"`
}

type Criterion struct {
	Key       string  `json:"key"`
	Desc      string  `json:"desc"`
	MaxPoints float64 `json:"max_points"`
}

// WritingRubric mirrors the four public IELTS writing descriptors, each
// weighted equally against the question's point value.
func WritingRubric(max float64) Rubric {
	per := max / 4
	return Rubric{
		Max: max,
		Criteria: []Criterion{
			{Key: "task_achievement", Desc: "Task achievement", MaxPoints: per},
			{Key: "coherence", Desc: "Coherence and cohesion", MaxPoints: per},
			{Key: "lexical", Desc: "Lexical resource", MaxPoints: per},
			{Key: "grammar", Desc: "Grammatical range and accuracy", MaxPoints: per},
		},
	}
}

// SpeakingRubric covers the spoken descriptors; pronunciation replaces task
// achievement.
func SpeakingRubric(max float64) Rubric {
	per := max / 4
	return Rubric{
		Max: max,
		Criteria: []Criterion{
			{Key: "fluency", Desc: "Fluency and coherence", MaxPoints: per},
			{Key: "lexical", Desc: "Lexical resource", MaxPoints: per},
			{Key: "grammar", Desc: "Grammatical range and accuracy", MaxPoints: per},
			{Key: "pronunciation", Desc: "Pronunciation", MaxPoints: per},
		},
	}
}

// ScoreRubric totals awarded points over the rubric's criteria.
func ScoreRubric(r Rubric, awarded map[string]float64) (float64, []string) {
	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := awarded[c.Key]
		if v < 0 {
			v = 0
		}
		if v > c.MaxPoints {
			v = c.MaxPoints
		}
		total += v
		notes = append(notes, fmt.Sprintf("%s:%.2f", c.Key, v))
	}
	if r.Max > 0 && total > r.Max {
		total = r.Max
	}
	return total, notes
}
