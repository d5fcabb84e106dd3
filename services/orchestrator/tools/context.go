// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import "context"

// RequestContext carries the identity and demographics of the user a tool
// invocation acts on behalf of.
//
// # Description
//
// Tools never trust model-emitted arguments for identity. The orchestration
// loop attaches the authenticated request's context before executing any
// tool, and adapters read it from ctx. A tool invoked without a
// RequestContext operates on zero values and should fail closed where
// identity matters.
type RequestContext struct {
	UserID           string
	Age              int
	Gender           string
	CountryContextID string
}

type requestContextKey struct{}

// WithRequestContext returns a ctx carrying rc.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom extracts the RequestContext, if any.
func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
