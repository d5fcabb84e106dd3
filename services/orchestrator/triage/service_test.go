// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// Tests for the triage decision precedence.

package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// stubClassifier returns a fixed answer and records whether it was invoked.
type stubClassifier struct {
	level   datatypes.RiskLevel
	err     error
	invoked bool
	gotAge  int
	gotGen  string
}

func (s *stubClassifier) Classify(_ context.Context, age int, gender string, _ datatypes.Vitals) (datatypes.RiskLevel, error) {
	s.invoked = true
	s.gotAge = age
	s.gotGen = gender
	return s.level, s.err
}

// stubProfiles resolves every user to the same profile.
type stubProfiles struct {
	profile *datatypes.ProfileResult
	err     error
	lookups int
}

func (s *stubProfiles) Resolve(_ context.Context, _ string) (*datatypes.ProfileResult, error) {
	s.lookups++
	return s.profile, s.err
}

func verifiedRequest() datatypes.TriageRequest {
	return datatypes.TriageRequest{
		UserID: "u1",
		Age:    34,
		Gender: "female",
		Vitals: completeVitals(),
	}
}

// =============================================================================
// Precedence
// =============================================================================

func TestService_VerifiedPathWins(t *testing.T) {
	classifier := &stubClassifier{level: datatypes.RiskYellow}
	service := NewService(classifier, nil)

	req := verifiedRequest()
	req.ModelUrgency = "self-care"
	result, err := service.Classify(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, classifier.invoked)
	assert.Equal(t, datatypes.RiskYellow, result.RiskLevel)
	assert.Equal(t, datatypes.VerificationVerified, result.VerificationMethod)
}

func TestService_NoDefiniteAnswerFallsThroughToModelUrgency(t *testing.T) {
	classifier := &stubClassifier{err: ErrNoDefiniteAnswer}
	service := NewService(classifier, nil)

	req := verifiedRequest()
	req.ModelUrgency = "emergency"
	result, err := service.Classify(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, datatypes.RiskRed, result.RiskLevel)
	assert.Equal(t, datatypes.VerificationFallback, result.VerificationMethod)
}

func TestService_IncompleteVitalsSkipVerifiedPath(t *testing.T) {
	classifier := &stubClassifier{level: datatypes.RiskGreen}
	service := NewService(classifier, nil)

	req := verifiedRequest()
	req.Vitals.Breathing = nil
	req.ModelUrgency = "moderate"
	result, err := service.Classify(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, classifier.invoked)
	assert.Equal(t, datatypes.RiskYellow, result.RiskLevel)
	assert.Equal(t, datatypes.VerificationFallback, result.VerificationMethod)
}

func TestService_UnknownFallbackIsTerminalDefault(t *testing.T) {
	service := NewService(&stubClassifier{err: ErrNoDefiniteAnswer}, nil)

	result, err := service.Classify(context.Background(), datatypes.TriageRequest{UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, datatypes.RiskUnknown, result.RiskLevel)
	assert.Equal(t, datatypes.VerificationFallback, result.VerificationMethod)
}

func TestService_UnnormalizableUrgencyYieldsUnknown(t *testing.T) {
	service := NewService(&stubClassifier{}, nil)

	result, err := service.Classify(context.Background(), datatypes.TriageRequest{
		UserID:       "u1",
		ModelUrgency: "probably fine",
	})

	require.NoError(t, err)
	assert.Equal(t, datatypes.RiskUnknown, result.RiskLevel)
}

func TestService_ValidationErrorSurfaces(t *testing.T) {
	genderErr := errors.New(`gender "x" does not normalize to male/female`)
	service := NewService(&stubClassifier{err: genderErr}, nil)

	req := verifiedRequest()
	req.Gender = "x"
	_, err := service.Classify(context.Background(), req)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDefiniteAnswer)
}

// =============================================================================
// Demographics Resolution
// =============================================================================

func TestService_ProfileFillsMissingDemographics(t *testing.T) {
	classifier := &stubClassifier{level: datatypes.RiskGreen}
	profiles := &stubProfiles{profile: &datatypes.ProfileResult{Age: 52, Gender: "male"}}
	service := NewService(classifier, profiles)

	req := verifiedRequest()
	req.Age = 0
	req.Gender = ""
	result, err := service.Classify(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 1, profiles.lookups)
	assert.Equal(t, 52, classifier.gotAge)
	assert.Equal(t, "male", classifier.gotGen)
	assert.Equal(t, datatypes.VerificationVerified, result.VerificationMethod)
}

func TestService_CallerDemographicsTakePrecedence(t *testing.T) {
	classifier := &stubClassifier{level: datatypes.RiskGreen}
	profiles := &stubProfiles{profile: &datatypes.ProfileResult{Age: 52, Gender: "male"}}
	service := NewService(classifier, profiles)

	_, err := service.Classify(context.Background(), verifiedRequest())

	require.NoError(t, err)
	assert.Equal(t, 0, profiles.lookups, "complete caller demographics need no lookup")
	assert.Equal(t, 34, classifier.gotAge)
	assert.Equal(t, "female", classifier.gotGen)
}

func TestService_ProfileFailureDegradesToFallback(t *testing.T) {
	classifier := &stubClassifier{level: datatypes.RiskGreen}
	profiles := &stubProfiles{err: errors.New("weaviate unreachable")}
	service := NewService(classifier, profiles)

	req := verifiedRequest()
	req.Age = 0
	req.ModelUrgency = "routine"
	result, err := service.Classify(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, classifier.invoked)
	assert.Equal(t, datatypes.RiskGreen, result.RiskLevel)
	assert.Equal(t, datatypes.VerificationFallback, result.VerificationMethod)
}
