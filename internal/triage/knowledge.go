package triage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed default_knowledge.json
var defaultKnowledgeJSON []byte

// DiagnosisClass is one of the outcomes the classifier can select.
type DiagnosisClass string

// Symptom is a normalized symptom key such as "chest_pain".
type Symptom string

// Definition is the serialized form of a knowledge base. Slice order is
// significant: Classes and Symptoms are the enumeration orders used for
// tie-breaking.
type Definition struct {
	Version           string              `json:"version"`
	Classes           []DiagnosisClass    `json:"classes"`
	DefaultSpecialty  string              `json:"default_specialty"`
	UnknownLikelihood float64             `json:"unknown_likelihood"`
	Symptoms          []SymptomDefinition `json:"symptoms"`
}

// SymptomDefinition describes one symptom row of the knowledge base.
type SymptomDefinition struct {
	Name       Symptom                    `json:"name"`
	Weight     int                        `json:"weight"`
	Specialty  string                     `json:"specialty"`
	Likelihood map[DiagnosisClass]float64 `json:"likelihood"`
}

type symptomProfile struct {
	weight     int
	specialty  string
	likelihood map[DiagnosisClass]float64
}

// KnowledgeBase is an immutable symptom table. Build one with
// NewKnowledgeBase; the zero value is not usable.
type KnowledgeBase struct {
	version           string
	classes           []DiagnosisClass
	symptoms          []Symptom
	profiles          map[Symptom]symptomProfile
	defaultSpecialty  string
	unknownLikelihood float64
}

// NewKnowledgeBase validates def and returns an immutable knowledge base.
func NewKnowledgeBase(def Definition) (*KnowledgeBase, error) {
	if len(def.Classes) == 0 {
		return nil, fmt.Errorf("triage: knowledge base needs at least one class")
	}
	classSet := make(map[DiagnosisClass]struct{}, len(def.Classes))
	classes := make([]DiagnosisClass, 0, len(def.Classes))
	for _, c := range def.Classes {
		if strings.TrimSpace(string(c)) == "" {
			return nil, fmt.Errorf("triage: empty class name")
		}
		if _, dup := classSet[c]; dup {
			return nil, fmt.Errorf("triage: duplicate class %q", c)
		}
		classSet[c] = struct{}{}
		classes = append(classes, c)
	}

	if strings.TrimSpace(def.DefaultSpecialty) == "" {
		return nil, fmt.Errorf("triage: default specialty required")
	}

	unknown := def.UnknownLikelihood
	if unknown == 0 {
		unknown = 0.001
	}
	if unknown <= 0 || unknown >= 1 {
		return nil, fmt.Errorf("triage: unknown likelihood %v outside (0,1)", unknown)
	}

	kb := &KnowledgeBase{
		version:           def.Version,
		classes:           classes,
		symptoms:          make([]Symptom, 0, len(def.Symptoms)),
		profiles:          make(map[Symptom]symptomProfile, len(def.Symptoms)),
		defaultSpecialty:  def.DefaultSpecialty,
		unknownLikelihood: unknown,
	}
	for _, s := range def.Symptoms {
		name := NormalizeSymptom(string(s.Name))
		if name == "" {
			return nil, fmt.Errorf("triage: empty symptom name")
		}
		if _, dup := kb.profiles[name]; dup {
			return nil, fmt.Errorf("triage: duplicate symptom %q", name)
		}
		if s.Weight < 0 {
			return nil, fmt.Errorf("triage: symptom %q has negative weight", name)
		}
		likelihood := make(map[DiagnosisClass]float64, len(s.Likelihood))
		for class, p := range s.Likelihood {
			if _, ok := classSet[class]; !ok {
				return nil, fmt.Errorf("triage: symptom %q references unknown class %q", name, class)
			}
			if p <= 0 || p >= 1 {
				return nil, fmt.Errorf("triage: symptom %q likelihood for %q outside (0,1)", name, class)
			}
			likelihood[class] = p
		}
		kb.symptoms = append(kb.symptoms, name)
		kb.profiles[name] = symptomProfile{
			weight:     s.Weight,
			specialty:  strings.TrimSpace(s.Specialty),
			likelihood: likelihood,
		}
	}
	return kb, nil
}

// ParseKnowledgeBase decodes a JSON definition.
func ParseKnowledgeBase(r io.Reader) (*KnowledgeBase, error) {
	var def Definition
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("triage: decode knowledge base: %w", err)
	}
	return NewKnowledgeBase(def)
}

// LoadKnowledgeBase reads a JSON definition from path; an empty path yields
// the embedded default table.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultKnowledgeBase()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("triage: open knowledge base: %w", err)
	}
	defer f.Close()
	return ParseKnowledgeBase(f)
}

// DefaultKnowledgeBase returns the embedded symptom table.
func DefaultKnowledgeBase() (*KnowledgeBase, error) {
	return ParseKnowledgeBase(strings.NewReader(string(defaultKnowledgeJSON)))
}

// MustDefaultKnowledgeBase panics if the embedded table is invalid.
func MustDefaultKnowledgeBase() *KnowledgeBase {
	kb, err := DefaultKnowledgeBase()
	if err != nil {
		panic(err)
	}
	return kb
}

// Version identifies the table, recorded alongside classifications.
func (kb *KnowledgeBase) Version() string { return kb.version }

// Classes returns the class enumeration order.
func (kb *KnowledgeBase) Classes() []DiagnosisClass {
	return append([]DiagnosisClass(nil), kb.classes...)
}

// Symptoms returns the symptom enumeration order.
func (kb *KnowledgeBase) Symptoms() []Symptom {
	return append([]Symptom(nil), kb.symptoms...)
}

// Known reports whether s is in the table.
func (kb *KnowledgeBase) Known(s Symptom) bool {
	_, ok := kb.profiles[s]
	return ok
}

// Weight returns the priority weight of s, 0 when unknown.
func (kb *KnowledgeBase) Weight(s Symptom) int {
	return kb.profiles[s].weight
}

// Likelihood returns P(s|class), falling back to the unknown likelihood when
// the table has no entry.
func (kb *KnowledgeBase) Likelihood(s Symptom, class DiagnosisClass) float64 {
	if p, ok := kb.profiles[s].likelihood[class]; ok {
		return p
	}
	return kb.unknownLikelihood
}

// NormalizeSymptom lower-cases and trims a raw symptom, mapping spaces and
// dashes to underscores.
func NormalizeSymptom(raw string) Symptom {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Symptom(s)
}
