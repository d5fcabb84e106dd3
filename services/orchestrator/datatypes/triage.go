// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"strings"
)

// =============================================================================
// Risk Model
// =============================================================================

// RiskLevel is the triage outcome category.
type RiskLevel string

const (
	RiskRed     RiskLevel = "red"
	RiskYellow  RiskLevel = "yellow"
	RiskGreen   RiskLevel = "green"
	RiskUnknown RiskLevel = "unknown"
)

// VerificationMethod records which tier produced a TriageResult.
//
// VerificationVerified is only ever set when all eight vitals fields were
// supplied and the verified classifier returned a definite category. Every
// other path, including an explicit model-asserted urgency, is
// VerificationFallback.
type VerificationMethod string

const (
	VerificationVerified VerificationMethod = "verified"
	VerificationFallback VerificationMethod = "fallback"
)

// Canonical gender values accepted by the verified classifier.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// =============================================================================
// Triage Request / Result
// =============================================================================

// Vitals holds the eight structured inputs of the verified classifier.
// Pointer booleans distinguish "false" from "not gathered yet": the verified
// path requires every field to be non-nil.
type Vitals struct {
	Pregnant        *bool `json:"pregnant"`
	Breathing       *bool `json:"breathing"`
	Conscious       *bool `json:"conscious"`
	Walking         *bool `json:"walking"`
	SevereSymptom   *bool `json:"severe_symptom"`
	ModerateSymptom *bool `json:"moderate_symptom"`
}

// Complete reports whether all six vitals booleans have been gathered.
// Age and gender are resolved separately (caller value or profile lookup).
func (v *Vitals) Complete() bool {
	return v.Pregnant != nil && v.Breathing != nil && v.Conscious != nil &&
		v.Walking != nil && v.SevereSymptom != nil && v.ModerateSymptom != nil
}

// TriageRequest is the body for POST /v1/triage and the argument shape of
// the triage_assess tool.
type TriageRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Age    int    `json:"age" validate:"gte=0,lte=130"`
	Gender string `json:"gender" validate:"omitempty,max=32"`
	Vitals Vitals `json:"vitals"`

	// ModelUrgency is an urgency category asserted by the language model
	// from unstructured conversation. Used only when the verified path is
	// unavailable or fails.
	ModelUrgency string `json:"model_urgency,omitempty"`
}

// Validate validates the TriageRequest fields.
func (r *TriageRequest) Validate() error {
	return chatValidate.Struct(r)
}

// TriageResult is the outcome of a triage classification.
type TriageResult struct {
	RiskLevel          RiskLevel          `json:"risk_level"`
	VerificationMethod VerificationMethod `json:"verification_method"`
}

// =============================================================================
// Normalization
// =============================================================================

// NormalizeGender maps free-form gender input to the two canonical values
// the verified classifier accepts.
//
// # Description
//
// Accepts common spellings and single-letter forms, case-insensitively.
// Anything else is a validation error raised to the caller; the classifier
// is never invoked with a coerced guess.
//
// # Outputs
//
//   - string: GenderMale or GenderFemale.
//   - error: Non-nil if the input does not normalize.
func NormalizeGender(gender string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "m", "man":
		return GenderMale, nil
	case "female", "f", "woman":
		return GenderFemale, nil
	}
	return "", fmt.Errorf("gender %q does not normalize to male/female", gender)
}

// NormalizeRisk maps a model-asserted urgency string to a definite risk
// level. Returns false when the string does not normalize to red, yellow or
// green; "unknown" is deliberately not a definite value here.
func NormalizeRisk(urgency string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "red", "emergency", "urgent":
		return RiskRed, true
	case "yellow", "moderate":
		return RiskYellow, true
	case "green", "routine", "self-care":
		return RiskGreen, true
	}
	return RiskUnknown, false
}
