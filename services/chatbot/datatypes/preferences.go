// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the chatbot service.
//
// This file contains the user preference types that shape response
// generation. For turn request/response types, see chat.go.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultLanguage is the language assumed when no preference is supplied.
// Non-default languages apply a confidence penalty during scoring.
const DefaultLanguage = "en"

// Formality levels accepted in preferences.
const (
	FormalityInformal = "informal"
	FormalityNeutral  = "neutral"
	FormalityFormal   = "formal"
)

// Learning modes accepted in preferences.
const (
	LearningModeActive  = "active"
	LearningModePassive = "passive"
)

// prefValidate is the validator instance for preference datatypes.
var prefValidate = validator.New()

// Preferences captures per-request response shaping options.
//
// # Description
//
// Preferences travel with a turn request and are merged into the
// generation context under a reserved "preferences" key. They are never
// overwritten by retrieval-derived or caller-supplied context fields.
// All fields are optional; zero values mean "no preference".
//
// # Fields
//
//   - Formality: One of "informal", "neutral", "formal".
//   - Language: BCP 47 language tag such as "en" or "pt-BR". Defaults
//     to DefaultLanguage when empty.
//   - LearningMode: One of "active", "passive". Controls whether the
//     assistant volunteers related material.
//
// # Examples
//
//	prefs := &Preferences{Formality: "formal", Language: "pt-BR"}
//	if err := prefs.Validate(); err != nil { ... }
type Preferences struct {
	Formality    string `json:"formality,omitempty" validate:"omitempty,oneof=informal neutral formal"`
	Language     string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	LearningMode string `json:"learning_mode,omitempty" validate:"omitempty,oneof=active passive"`
}

// Validate checks the preference values against their allowed sets.
//
// # Outputs
//
//   - error: Non-nil if any field holds a value outside its allowed set.
//     Callers should surface this as an invalid-preference error rather
//     than silently dropping the field.
func (p *Preferences) Validate() error {
	if p == nil {
		return nil
	}
	if err := prefValidate.Struct(p); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}
	return nil
}

// EffectiveLanguage returns the preferred language, falling back to
// DefaultLanguage when unset.
func (p *Preferences) EffectiveLanguage() string {
	if p == nil || p.Language == "" {
		return DefaultLanguage
	}
	return p.Language
}

// ToMap converts the preferences to the nested map form used inside a
// generation context. Empty fields are omitted.
func (p *Preferences) ToMap() map[string]interface{} {
	m := map[string]interface{}{}
	if p == nil {
		return m
	}
	if p.Formality != "" {
		m["formality"] = p.Formality
	}
	if p.Language != "" {
		m["language"] = p.Language
	}
	if p.LearningMode != "" {
		m["learning_mode"] = p.LearningMode
	}
	return m
}
