// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"testing"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestParseSearchResultsWalksGetResponse(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]interface{}{
			DocumentClass: []interface{}{
				map[string]interface{}{
					"content": "Paris is the capital of France.",
					"source":  "geo/europe.md_part_1",
					"_additional": map[string]interface{}{
						"certainty": 0.93,
					},
				},
				map[string]interface{}{
					"content": "France borders eight countries.",
					"source":  "geo/europe.md_part_2",
				},
			},
		},
	}

	passages := parseSearchResults(data)
	require.Len(t, passages, 2)

	assert.Equal(t, "Paris is the capital of France.", passages[0].Content)
	assert.Equal(t, "geo/europe.md_part_1", passages[0].Source)
	assert.Equal(t, datatypes.OriginLocal, passages[0].Origin)
}

func TestParseSearchResultsToleratesMalformedShapes(t *testing.T) {
	assert.Empty(t, parseSearchResults(map[string]models.JSONObject{}))
	assert.Empty(t, parseSearchResults(map[string]models.JSONObject{"Get": "not a map"}))
	assert.Empty(t, parseSearchResults(map[string]models.JSONObject{
		"Get": map[string]interface{}{DocumentClass: "not a list"},
	}))

	// Rows without content are dropped, the rest still parse.
	passages := parseSearchResults(map[string]models.JSONObject{
		"Get": map[string]interface{}{
			DocumentClass: []interface{}{
				map[string]interface{}{"source": "empty.md"},
				map[string]interface{}{"content": "kept", "source": "ok.md"},
			},
		},
	})
	require.Len(t, passages, 1)
	assert.Equal(t, "kept", passages[0].Content)
}
