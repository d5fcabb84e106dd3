// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// Tests for the direct triage handler.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/triage"
)

// fixedClassifier satisfies triage.Classifier with a canned answer, erroring
// on a gender the real adapter would refuse.
type fixedClassifier struct {
	level datatypes.RiskLevel
}

func (f *fixedClassifier) Classify(_ context.Context, _ int, gender string, _ datatypes.Vitals) (datatypes.RiskLevel, error) {
	if _, err := datatypes.NormalizeGender(gender); err != nil {
		return datatypes.RiskUnknown, err
	}
	return f.level, nil
}

func newTriageRouter(level datatypes.RiskLevel) *gin.Engine {
	svc := triage.NewService(&fixedClassifier{level: level}, nil)
	router := gin.New()
	router.POST("/v1/triage", HandleTriage(svc))
	return router
}

func postTriage(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/triage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func vitalsBody(age int, gender string) string {
	return fmt.Sprintf(`{
		"user_id": "u1",
		"age": %d,
		"gender": %q,
		"vitals": {
			"pregnant": false,
			"breathing": true,
			"conscious": true,
			"walking": true,
			"severe_symptom": false,
			"moderate_symptom": false
		}
	}`, age, gender)
}

func TestHandleTriage_VerifiedClassification(t *testing.T) {
	router := newTriageRouter(datatypes.RiskGreen)

	w := postTriage(router, vitalsBody(30, "female"))

	require.Equal(t, http.StatusOK, w.Code)
	var result datatypes.TriageResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, datatypes.RiskGreen, result.RiskLevel)
	assert.Equal(t, datatypes.VerificationVerified, result.VerificationMethod)
}

func TestHandleTriage_IncompleteVitalsFallBack(t *testing.T) {
	router := newTriageRouter(datatypes.RiskGreen)

	w := postTriage(router, `{"user_id":"u1","model_urgency":"urgent","vitals":{"breathing":true}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var result datatypes.TriageResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, datatypes.RiskRed, result.RiskLevel)
	assert.Equal(t, datatypes.VerificationFallback, result.VerificationMethod)
}

func TestHandleTriage_NoSignalYieldsUnknown(t *testing.T) {
	router := newTriageRouter(datatypes.RiskGreen)

	w := postTriage(router, `{"user_id":"u1","vitals":{}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var result datatypes.TriageResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, datatypes.RiskUnknown, result.RiskLevel)
}

func TestHandleTriage_InvalidGenderRejected(t *testing.T) {
	router := newTriageRouter(datatypes.RiskGreen)

	w := postTriage(router, vitalsBody(30, "unspecified"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTriage_MissingUserIDRejected(t *testing.T) {
	router := newTriageRouter(datatypes.RiskGreen)

	w := postTriage(router, `{"vitals":{}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTriage_MalformedBodyRejected(t *testing.T) {
	router := newTriageRouter(datatypes.RiskGreen)

	w := postTriage(router, `{`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
