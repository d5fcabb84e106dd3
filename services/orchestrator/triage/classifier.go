// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package triage implements the two-tier risk classification protocol:
// a deterministic, pre-verified decision procedure invoked as a subprocess,
// with a model-asserted fallback when structured input is incomplete or the
// procedure gives no definite answer.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

// ClassifierTimeout is the hard ceiling on one verified classifier run.
// A run exceeding it is treated as "no definite answer", not an error.
const ClassifierTimeout = 5 * time.Second

// ErrNoDefiniteAnswer is returned by the adapter when the classifier exits
// with an unmapped status, times out, or cannot be started. It signals the
// caller to fall through to the model-asserted tier, never to retry.
var ErrNoDefiniteAnswer = errors.New("verified classifier gave no definite answer")

// CommandRunner abstracts subprocess execution for tests.
//
// Run executes the named binary with args and returns its exit status.
// A negative status means the process could not be started or was killed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (int, error)
}

// execRunner is the production CommandRunner backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	// Not found, not executable, or killed before exit.
	return -1, err
}

// VerifiedClassifier invokes the external deterministic triage procedure.
//
// # Description
//
// The procedure is a black box with a load-bearing interface contract: it
// receives eight positional arguments (age, gender, pregnant, breathing,
// conscious, walking, severe_symptom, moderate_symptom) and communicates
// its category through the exit status: 0 is red, 1 is yellow, 2 is green.
// Any other status, or a run longer than ClassifierTimeout, is
// ErrNoDefiniteAnswer.
//
// # Thread Safety
//
// Safe for concurrent use; each call spawns its own process.
type VerifiedClassifier struct {
	binaryPath string
	runner     CommandRunner
}

// NewVerifiedClassifier creates the adapter for the given binary path.
// A nil runner uses os/exec.
func NewVerifiedClassifier(binaryPath string, runner CommandRunner) *VerifiedClassifier {
	if runner == nil {
		runner = execRunner{}
	}
	return &VerifiedClassifier{
		binaryPath: binaryPath,
		runner:     runner,
	}
}

// Classify runs the verified procedure for a complete set of inputs.
//
// # Inputs
//
//   - ctx: Context; the adapter adds its own 5-second timeout on top.
//   - age: Resolved age in years.
//   - gender: Free-form; normalized strictly to male/female before
//     invocation. Anything else is a validation error raised to the caller,
//     never silently coerced.
//   - vitals: All six fields must be non-nil; the caller guarantees this.
//
// # Outputs
//
//   - datatypes.RiskLevel: red, yellow, or green on a definite answer.
//   - error: ErrNoDefiniteAnswer for an unmapped exit status, timeout, or
//     startup failure; a validation error for an unnormalizable gender.
func (c *VerifiedClassifier) Classify(ctx context.Context, age int, gender string, vitals datatypes.Vitals) (datatypes.RiskLevel, error) {
	normalizedGender, err := datatypes.NormalizeGender(gender)
	if err != nil {
		return datatypes.RiskUnknown, err
	}
	if !vitals.Complete() {
		return datatypes.RiskUnknown, fmt.Errorf("incomplete vitals for verified classification")
	}

	args := []string{
		strconv.Itoa(age),
		normalizedGender,
		boolArg(*vitals.Pregnant),
		boolArg(*vitals.Breathing),
		boolArg(*vitals.Conscious),
		boolArg(*vitals.Walking),
		boolArg(*vitals.SevereSymptom),
		boolArg(*vitals.ModerateSymptom),
	}

	ctx, cancel := context.WithTimeout(ctx, ClassifierTimeout)
	defer cancel()

	status, runErr := c.runner.Run(ctx, c.binaryPath, args...)
	if ctx.Err() != nil {
		slog.Warn("Verified classifier timed out", "timeout", ClassifierTimeout)
		return datatypes.RiskUnknown, ErrNoDefiniteAnswer
	}
	if runErr != nil && status < 0 {
		slog.Warn("Verified classifier could not run", "binary", c.binaryPath, "error", runErr)
		return datatypes.RiskUnknown, ErrNoDefiniteAnswer
	}

	switch status {
	case 0:
		return datatypes.RiskRed, nil
	case 1:
		return datatypes.RiskYellow, nil
	case 2:
		return datatypes.RiskGreen, nil
	}

	slog.Warn("Verified classifier returned unmapped exit status", "status", status)
	return datatypes.RiskUnknown, ErrNoDefiniteAnswer
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
