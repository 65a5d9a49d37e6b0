package triage

import "math"

// PriorityLevel buckets a priority score for queue display.
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "Low"
	PriorityMedium PriorityLevel = "Medium"
	PriorityHigh   PriorityLevel = "High"
)

// Level thresholds are inclusive.
const (
	HighPriorityThreshold   = 10
	MediumPriorityThreshold = 5
)

// Result is the outcome of triaging a symptom set.
type Result struct {
	Symptoms      []Symptom      `json:"symptoms"`
	Diagnosis     DiagnosisClass `json:"diagnosis"`
	Specialty     string         `json:"specialty"`
	PriorityScore int            `json:"priority_score"`
	PriorityLevel PriorityLevel  `json:"priority_level"`
	KBVersion     string         `json:"knowledge_base_version,omitempty"`
}

// Classifier turns symptom sets into a diagnosis, specialty and priority.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	kb *KnowledgeBase
}

// NewClassifier builds a classifier over kb.
func NewClassifier(kb *KnowledgeBase) *Classifier {
	if kb == nil {
		panic("triage: knowledge base required")
	}
	return &Classifier{kb: kb}
}

// KnowledgeBase exposes the table the classifier was built with.
func (c *Classifier) KnowledgeBase() *KnowledgeBase { return c.kb }

// Triage runs classification and scoring in one pass.
func (c *Classifier) Triage(raw []string) Result {
	set := NormalizeSet(raw)
	diagnosis, specialty := c.classify(set)
	score := c.score(set)
	return Result{
		Symptoms:      set,
		Diagnosis:     diagnosis,
		Specialty:     specialty,
		PriorityScore: score,
		PriorityLevel: LevelFor(score),
		KBVersion:     c.kb.version,
	}
}

// Classify returns the maximum-likelihood diagnosis class and the suggested
// specialty for the symptom set.
func (c *Classifier) Classify(raw []string) (DiagnosisClass, string) {
	return c.classify(NormalizeSet(raw))
}

// PriorityScore sums the weights of the present symptoms. Unknown symptoms
// contribute 0, so adding a symptom never lowers the score.
func (c *Classifier) PriorityScore(raw []string) int {
	return c.score(NormalizeSet(raw))
}

// LevelFor maps a score to its level.
func LevelFor(score int) PriorityLevel {
	switch {
	case score >= HighPriorityThreshold:
		return PriorityHigh
	case score >= MediumPriorityThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func (c *Classifier) classify(set []Symptom) (DiagnosisClass, string) {
	present := make(map[Symptom]bool, len(set))
	for _, s := range set {
		present[s] = true
	}

	// Uniform prior; absent symptoms count too, so an empty or all-unknown
	// set still gets a computed class. Ties keep the earlier declared class.
	prior := math.Log(1 / float64(len(c.kb.classes)))
	best := c.kb.classes[0]
	bestLog := math.Inf(-1)
	for _, class := range c.kb.classes {
		logProb := prior
		for _, s := range c.kb.symptoms {
			p := c.kb.Likelihood(s, class)
			if present[s] {
				logProb += math.Log(p)
			} else {
				logProb += math.Log(1 - p)
			}
		}
		if logProb > bestLog {
			bestLog = logProb
			best = class
		}
	}

	return best, c.specialtyFor(present)
}

// specialtyFor picks the most frequent specialty among present symptoms,
// breaking ties by knowledge-base symptom order.
func (c *Classifier) specialtyFor(present map[Symptom]bool) string {
	counts := make(map[string]int)
	var order []string
	for _, s := range c.kb.symptoms {
		if !present[s] {
			continue
		}
		sp := c.kb.profiles[s].specialty
		if sp == "" {
			continue
		}
		if counts[sp] == 0 {
			order = append(order, sp)
		}
		counts[sp]++
	}
	best, bestCount := c.kb.defaultSpecialty, 0
	for _, sp := range order {
		if counts[sp] > bestCount {
			best, bestCount = sp, counts[sp]
		}
	}
	return best
}

func (c *Classifier) score(set []Symptom) int {
	total := 0
	for _, s := range set {
		total += c.kb.Weight(s)
	}
	return total
}

// NormalizeSet normalizes raw symptoms and drops blanks and duplicates,
// keeping first-seen order.
func NormalizeSet(raw []string) []Symptom {
	out := make([]Symptom, 0, len(raw))
	seen := make(map[Symptom]struct{}, len(raw))
	for _, r := range raw {
		s := NormalizeSymptom(r)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
