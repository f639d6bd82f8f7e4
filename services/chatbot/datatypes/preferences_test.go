// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for preference validation

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreferencesValidate(t *testing.T) {
	tests := []struct {
		name    string
		prefs   *Preferences
		wantErr bool
	}{
		{"nil preferences", nil, false},
		{"empty preferences", &Preferences{}, false},
		{"valid formality", &Preferences{Formality: FormalityFormal}, false},
		{"all fields valid", &Preferences{
			Formality:    FormalityInformal,
			Language:     "pt-BR",
			LearningMode: LearningModeActive,
		}, false},
		{"invalid formality", &Preferences{Formality: "shouty"}, true},
		{"invalid learning mode", &Preferences{LearningMode: "osmosis"}, true},
		{"invalid language tag", &Preferences{Language: "not a tag"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEffectiveLanguage(t *testing.T) {
	var nilPrefs *Preferences
	assert.Equal(t, DefaultLanguage, nilPrefs.EffectiveLanguage())
	assert.Equal(t, DefaultLanguage, (&Preferences{}).EffectiveLanguage())
	assert.Equal(t, "ja", (&Preferences{Language: "ja"}).EffectiveLanguage())
}

func TestPreferencesToMap(t *testing.T) {
	var nilPrefs *Preferences
	assert.Empty(t, nilPrefs.ToMap())
	assert.Empty(t, (&Preferences{}).ToMap())

	m := (&Preferences{Formality: FormalityNeutral, Language: "en"}).ToMap()
	assert.Equal(t, map[string]interface{}{
		"formality": "neutral",
		"language":  "en",
	}, m)
}
