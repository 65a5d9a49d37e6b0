package triage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKnowledgeBaseOrder(t *testing.T) {
	kb := MustDefaultKnowledgeBase()

	assert.Equal(t, []DiagnosisClass{"General_Illness", "Flu", "Severe_Infection"}, kb.Classes())
	symptoms := kb.Symptoms()
	require.Len(t, symptoms, 9)
	assert.Equal(t, Symptom("fever"), symptoms[0])
	assert.Equal(t, Symptom("child_fever"), symptoms[8])
	assert.Equal(t, 15, kb.Weight("difficulty_breathing"))
	assert.Equal(t, 0, kb.Weight("unknown"))
}

func TestKnowledgeBaseAccessorsReturnCopies(t *testing.T) {
	kb := MustDefaultKnowledgeBase()
	classes := kb.Classes()
	classes[0] = "Tampered"
	assert.Equal(t, DiagnosisClass("General_Illness"), kb.Classes()[0])
}

func TestNewKnowledgeBaseValidation(t *testing.T) {
	base := func() Definition {
		return Definition{
			Classes:          []DiagnosisClass{"A", "B"},
			DefaultSpecialty: "General physician",
			Symptoms: []SymptomDefinition{
				{Name: "x", Weight: 1, Likelihood: map[DiagnosisClass]float64{"A": 0.5}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Definition)
		want   string
	}{
		{"no classes", func(d *Definition) { d.Classes = nil }, "at least one class"},
		{"duplicate class", func(d *Definition) { d.Classes = []DiagnosisClass{"A", "A"} }, "duplicate class"},
		{"missing default specialty", func(d *Definition) { d.DefaultSpecialty = "" }, "default specialty"},
		{"negative weight", func(d *Definition) { d.Symptoms[0].Weight = -1 }, "negative weight"},
		{"likelihood one", func(d *Definition) { d.Symptoms[0].Likelihood["A"] = 1 }, "outside (0,1)"},
		{"unknown class ref", func(d *Definition) { d.Symptoms[0].Likelihood["C"] = 0.2 }, "unknown class"},
		{"duplicate symptom", func(d *Definition) { d.Symptoms = append(d.Symptoms, SymptomDefinition{Name: "X"}) }, "duplicate symptom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(&def)
			_, err := NewKnowledgeBase(def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	kb, err := NewKnowledgeBase(base())
	require.NoError(t, err)
	assert.Equal(t, []DiagnosisClass{"A", "B"}, kb.Classes())
}

func TestLoadKnowledgeBaseFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	body := `{"version":"test-1","classes":["Mild","Acute"],"default_specialty":"GP",
	  "symptoms":[{"name":"cough","weight":3,"specialty":"Pulmonologist","likelihood":{"Mild":0.7,"Acute":0.2}}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	kb, err := LoadKnowledgeBase(path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", kb.Version())
	assert.Equal(t, 3, kb.Weight("cough"))

	_, err = LoadKnowledgeBase(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	kb, err = LoadKnowledgeBase("")
	require.NoError(t, err)
	assert.Equal(t, "2024.1", kb.Version())
}

func TestParseKnowledgeBaseRejectsUnknownFields(t *testing.T) {
	_, err := ParseKnowledgeBase(strings.NewReader(`{"classes":["A"],"default_specialty":"GP","priors":{}}`))
	assert.Error(t, err)
}
