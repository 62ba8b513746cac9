// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func performIngest(t *testing.T, engine *policy.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// Requests in these tests must be rejected before the store or the
	// embedder is ever touched.
	router := gin.New()
	router.POST("/v1/documents", CreateDocument(nil, nil, engine))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateDocumentRejectsMissingFields(t *testing.T) {
	engine, err := policy.NewEngine()
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
	}{
		{"empty content", `{"content": "", "source": "a.md", "collection": "default"}`},
		{"empty source", `{"content": "text", "source": "", "collection": "default"}`},
		{"empty collection", `{"content": "text", "source": "a.md", "collection": ""}`},
		{"malformed json", `{"content": `},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := performIngest(t, engine, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateDocumentRejectsSecretMaterial(t *testing.T) {
	engine, err := policy.NewEngine()
	require.NoError(t, err)

	body, _ := json.Marshal(IngestDocumentRequest{
		Content:    "deploy notes\nAKIA1234567890123456\nrotate quarterly",
		Source:     "runbook.md",
		Collection: "default",
	})
	w := performIngest(t, engine, string(body))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Error    string           `json:"error"`
		Findings []policy.Finding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "secret material")
	require.Len(t, resp.Findings, 1)
	assert.Equal(t, "AWS_ACCESS_KEY_ID", resp.Findings[0].PatternId)
	assert.Equal(t, 2, resp.Findings[0].LineNumber)
}

func TestFindingsInFiltersByCategory(t *testing.T) {
	findings := []policy.Finding{
		{CategoryName: "secret", PatternId: "AWS_ACCESS_KEY_ID"},
		{CategoryName: "pii", PatternId: "EMAIL_ADDRESS"},
		{CategoryName: "secret", PatternId: "PRIVATE_KEY_BLOCK"},
	}

	secrets := findingsIn(findings, "secret")
	require.Len(t, secrets, 2)
	assert.Equal(t, "PRIVATE_KEY_BLOCK", secrets[1].PatternId)
	assert.Empty(t, findingsIn(findings, "unknown"))
}

func TestGetSplitterForFileChunksByExtension(t *testing.T) {
	// The markdown splitter prefers heading boundaries, so two sections
	// longer than half the chunk size land in separate chunks.
	section := strings.Repeat("alpha beta gamma delta ", 30)
	content := "# First\n" + section + "\n# Second\n" + section

	chunks, err := getSplitterForFile("notes.md").SplitText(content)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	chunks, err = getSplitterForFile("notes.txt").SplitText("short and plain")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short and plain", chunks[0])
}
