// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// Tests for the verified classifier adapter.

package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// stubRunner returns a fixed exit status and captures the invocation.
type stubRunner struct {
	status  int
	err     error
	gotName string
	gotArgs []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) (int, error) {
	s.gotName = name
	s.gotArgs = args
	return s.status, s.err
}

func boolPtr(b bool) *bool { return &b }

func completeVitals() datatypes.Vitals {
	return datatypes.Vitals{
		Pregnant:        boolPtr(false),
		Breathing:       boolPtr(true),
		Conscious:       boolPtr(true),
		Walking:         boolPtr(true),
		SevereSymptom:   boolPtr(false),
		ModerateSymptom: boolPtr(true),
	}
}

// =============================================================================
// Exit Status Mapping
// =============================================================================

func TestVerifiedClassifier_ExitStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   datatypes.RiskLevel
	}{
		{0, datatypes.RiskRed},
		{1, datatypes.RiskYellow},
		{2, datatypes.RiskGreen},
	}

	for _, tc := range cases {
		runner := &stubRunner{status: tc.status}
		classifier := NewVerifiedClassifier("/usr/local/bin/triage", runner)

		level, err := classifier.Classify(context.Background(), 30, "female", completeVitals())

		require.NoError(t, err)
		assert.Equal(t, tc.want, level)
	}
}

func TestVerifiedClassifier_UnmappedStatusIsNoDefiniteAnswer(t *testing.T) {
	runner := &stubRunner{status: 127}
	classifier := NewVerifiedClassifier("/usr/local/bin/triage", runner)

	level, err := classifier.Classify(context.Background(), 30, "female", completeVitals())

	assert.ErrorIs(t, err, ErrNoDefiniteAnswer)
	assert.Equal(t, datatypes.RiskUnknown, level)
}

func TestVerifiedClassifier_StartupFailureIsNoDefiniteAnswer(t *testing.T) {
	runner := &stubRunner{status: -1, err: errors.New("no such file")}
	classifier := NewVerifiedClassifier("/missing/triage", runner)

	_, err := classifier.Classify(context.Background(), 30, "male", completeVitals())

	assert.ErrorIs(t, err, ErrNoDefiniteAnswer)
}

// =============================================================================
// Argument Contract
// =============================================================================

func TestVerifiedClassifier_PositionalArguments(t *testing.T) {
	runner := &stubRunner{status: 2}
	classifier := NewVerifiedClassifier("/usr/local/bin/triage", runner)

	_, err := classifier.Classify(context.Background(), 45, "Woman", completeVitals())

	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/triage", runner.gotName)
	// age, gender, pregnant, breathing, conscious, walking, severe, moderate
	assert.Equal(t, []string{"45", "female", "0", "1", "1", "1", "0", "1"}, runner.gotArgs)
}

func TestVerifiedClassifier_GenderValidationSurfaces(t *testing.T) {
	runner := &stubRunner{status: 0}
	classifier := NewVerifiedClassifier("/usr/local/bin/triage", runner)

	_, err := classifier.Classify(context.Background(), 30, "unspecified", completeVitals())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDefiniteAnswer)
	assert.Empty(t, runner.gotName, "classifier must not be invoked with invalid gender")
}

func TestVerifiedClassifier_IncompleteVitalsRejected(t *testing.T) {
	runner := &stubRunner{status: 0}
	classifier := NewVerifiedClassifier("/usr/local/bin/triage", runner)

	vitals := completeVitals()
	vitals.Conscious = nil
	_, err := classifier.Classify(context.Background(), 30, "male", vitals)

	require.Error(t, err)
	assert.Empty(t, runner.gotName)
}
