// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration, span attributes and
// structured logging for relay pipelines.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for relay telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Session attributes
	AttrSessionID     = "relay.session.id"
	AttrSessionDomain = "relay.session.domain"
	AttrSessionStatus = "relay.session.status"

	// Stage attributes
	AttrStageName     = "relay.stage.name"
	AttrStageAgent    = "relay.stage.agent"
	AttrStageAttempt  = "relay.stage.attempt"
	AttrStageSource   = "relay.stage.source" // "model", "mock", "tool"
	AttrStageSuccess  = "relay.stage.success"
	AttrStageFailedAt = "relay.stage.failed"

	// Pipeline attributes
	AttrPipelineID = "relay.pipeline.id"
	AttrDomains    = "relay.domains"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
)

// SessionAttributes returns common attributes for session spans.
func SessionAttributes(sessionID, domain, pipelineID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrSessionDomain, domain),
	}
	if pipelineID != "" {
		attrs = append(attrs, attribute.String(AttrPipelineID, pipelineID))
	}
	return attrs
}

// StageAttributes returns attributes for a stage span.
func StageAttributes(stage, agent string, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrStageName, stage),
	}
	if agent != "" {
		attrs = append(attrs, attribute.String(AttrStageAgent, agent))
	}
	if attempt > 0 {
		attrs = append(attrs, attribute.Int(AttrStageAttempt, attempt))
	}
	return attrs
}

// StageOutcomeAttributes returns the attributes recorded when a stage finishes.
func StageOutcomeAttributes(success bool, source string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrStageSuccess, success),
	}
	if source != "" {
		attrs = append(attrs, attribute.String(AttrStageSource, source))
	}
	return attrs
}
