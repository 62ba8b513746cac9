// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the request and response types for the validated
// answer endpoint. The workflow-internal types live in answer.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// MaxQuestionBytes is the maximum size of a question in bytes.
	// Byte length, not rune count, to bound memory on hostile payloads.
	MaxQuestionBytes = 32 * 1024 // 32KB

	// MaxHistoryMessages is the maximum number of prior turns a request
	// may carry.
	MaxHistoryMessages = 100
)

// askValidate is the validator instance for the ask datatypes.
// Initialized in init() with custom validators.
var askValidate *validator.Validate

func init() {
	askValidate = validator.New()
	_ = askValidate.RegisterValidation("maxbytes", validateQuestionBytes)
}

func validateQuestionBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// AskRequest is the body of POST /v1/ask.
//
// # Description
//
// Carries one question against a named evidence collection, plus optional
// conversation history and session continuity. Every request gets a unique
// ID and timestamp for audit trails.
//
// # Fields
//
//   - Id: Optional client-side UUID v4; generated server-side when absent.
//   - Timestamp: Unix milliseconds UTC; generated server-side when absent.
//   - Question: Required. Limited to 32KB.
//   - Collection: Required. The evidence collection to retrieve from.
//   - History: Optional prior turns, at most 100, chronological order.
//     When empty and SessionId names a known session, stored history is
//     loaded instead.
//   - SessionId: Optional. Absent means a new session is created.
//
// # Validation
//
// Uses go-playground/validator:
//   - Id: UUID v4 when present
//   - Question: required, max 32768 bytes
//   - Collection: required
//   - History: max 100 elements
type AskRequest struct {
	Id         string    `json:"id" validate:"omitempty,uuid4"`
	Timestamp  int64     `json:"timestamp" validate:"gte=0"`
	Question   string    `json:"question" validate:"required,maxbytes"`
	Collection string    `json:"collection" validate:"required"`
	History    []Message `json:"history" validate:"max=100,dive"`
	SessionId  string    `json:"session_id"`
}

// Validate checks the request after JSON binding.
func (r *AskRequest) Validate() error {
	return askValidate.Struct(r)
}

// EnsureDefaults populates Id and Timestamp when the client omitted them.
func (r *AskRequest) EnsureDefaults() {
	if r.Id == "" {
		r.Id = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// EnsureSessionId returns the effective session id and whether it is new.
// A missing session id starts a fresh session.
func (r *AskRequest) EnsureSessionId() (string, bool) {
	if r.SessionId == "" {
		r.SessionId = uuid.New().String()
		return r.SessionId, true
	}
	return r.SessionId, false
}

// AskResponse is the body returned by POST /v1/ask.
//
// # Fields
//
//   - ResponseId: Server-generated UUID v4 for audit correlation.
//   - RequestId: Echo of the request id.
//   - SessionId: The effective session, new or continued.
//   - Timestamp: Unix milliseconds UTC when the response was built.
//   - Result: The terminal answer envelope, provenance included.
//   - ProcessingTimeMs: Wall time spent inside the workflow.
type AskResponse struct {
	ResponseId       string          `json:"response_id"`
	RequestId        string          `json:"request_id"`
	SessionId        string          `json:"session_id"`
	Timestamp        int64           `json:"timestamp"`
	Result           *AnswerEnvelope `json:"result"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}

// NewAskResponse creates a response with a generated id and timestamp.
func NewAskResponse(requestId, sessionId string, result *AnswerEnvelope, elapsed time.Duration) *AskResponse {
	return &AskResponse{
		ResponseId:       uuid.New().String(),
		RequestId:        requestId,
		SessionId:        sessionId,
		Timestamp:        time.Now().UnixMilli(),
		Result:           result,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}
