// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package triage

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("afyaflow.orchestrator.triage")

// Classifier is the narrow contract the service needs from the verified
// adapter. Satisfied by *VerifiedClassifier.
type Classifier interface {
	Classify(ctx context.Context, age int, gender string, vitals datatypes.Vitals) (datatypes.RiskLevel, error)
}

// Service decides, per request, whether sufficient structured input exists
// to use the verified classifier, and falls back to a model-supplied
// category otherwise.
//
// # Decision Precedence
//
// Strict order, first applicable branch wins:
//
//  1. All six vitals present AND age/gender resolvable (caller value first,
//     then profile lookup): invoke the verified classifier. A definite
//     answer is verification_method=verified. Adapter failure falls through
//     to 2 without retrying.
//  2. A model-asserted urgency that normalizes to red/yellow/green:
//     verification_method=fallback with that level.
//  3. Otherwise: risk_level=unknown, verification_method=fallback.
//
// # Thread Safety
//
// Safe for concurrent use.
type Service struct {
	classifier Classifier
	profiles   ProfileResolver
}

// NewService creates a triage service. profiles may be nil, in which case
// only caller-supplied age/gender can satisfy the verified path.
func NewService(classifier Classifier, profiles ProfileResolver) *Service {
	return &Service{
		classifier: classifier,
		profiles:   profiles,
	}
}

// Classify runs the triage decision procedure for one request.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - req: Vitals plus optional caller-supplied age/gender and model
//     urgency. UserID drives the profile lookup when demographics are
//     missing.
//
// # Outputs
//
//   - datatypes.TriageResult: Never zero; the unknown/fallback pair is the
//     terminal default.
//   - error: Non-nil only for validation failures (unnormalizable gender on
//     the verified path). Classifier ambiguity is not an error.
func (s *Service) Classify(ctx context.Context, req datatypes.TriageRequest) (datatypes.TriageResult, error) {
	ctx, span := tracer.Start(ctx, "triage.Classify")
	defer span.End()

	age, gender := s.resolveDemographics(ctx, req)

	if req.Vitals.Complete() && age > 0 && gender != "" {
		level, err := s.classifier.Classify(ctx, age, gender, req.Vitals)
		switch {
		case err == nil:
			span.SetAttributes(
				attribute.String("risk_level", string(level)),
				attribute.String("verification_method", string(datatypes.VerificationVerified)))
			return datatypes.TriageResult{
				RiskLevel:          level,
				VerificationMethod: datatypes.VerificationVerified,
			}, nil

		case errors.Is(err, ErrNoDefiniteAnswer):
			// Fall through to the model-asserted tier. No retry.
			slog.Warn("Verified classifier unavailable, using fallback", "user_id", req.UserID)

		default:
			// Validation failure (e.g. unnormalizable gender) surfaces to
			// the caller rather than being silently defaulted.
			span.RecordError(err)
			return datatypes.TriageResult{}, err
		}
	}

	if level, ok := datatypes.NormalizeRisk(req.ModelUrgency); ok {
		span.SetAttributes(
			attribute.String("risk_level", string(level)),
			attribute.String("verification_method", string(datatypes.VerificationFallback)))
		return datatypes.TriageResult{
			RiskLevel:          level,
			VerificationMethod: datatypes.VerificationFallback,
		}, nil
	}

	span.SetAttributes(attribute.String("risk_level", string(datatypes.RiskUnknown)))
	return datatypes.TriageResult{
		RiskLevel:          datatypes.RiskUnknown,
		VerificationMethod: datatypes.VerificationFallback,
	}, nil
}

// resolveDemographics resolves age and gender: caller-supplied values take
// precedence, the stored profile fills the gaps. Lookup failures degrade to
// unresolved (the fallback tier), never to an error.
func (s *Service) resolveDemographics(ctx context.Context, req datatypes.TriageRequest) (int, string) {
	age := req.Age
	gender := req.Gender

	if (age <= 0 || gender == "") && s.profiles != nil && req.UserID != "" {
		profile, err := s.profiles.Resolve(ctx, req.UserID)
		if err != nil {
			slog.Warn("Profile lookup failed during triage", "user_id", req.UserID, "error", err)
		} else if profile != nil {
			if age <= 0 {
				age = profile.Age
			}
			if gender == "" {
				gender = profile.Gender
			}
		}
	}

	return age, gender
}
