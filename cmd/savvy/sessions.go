// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/history"
	"github.com/spf13/cobra"
)

type sessionHistoryResponse struct {
	SessionId string         `json:"session_id"`
	Turns     []history.Turn `json:"turns"`
}

func runSessionHistory(cmd *cobra.Command, args []string) {
	sessionId := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s/history", getOrchestratorBaseURL(), sessionId)

	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("Failed to reach the orchestrator: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed sessionHistoryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		log.Fatalf("Failed to parse the response: %v", err)
	}

	if len(parsed.Turns) == 0 {
		fmt.Printf("No stored turns for session %s\n", sessionId)
		return
	}
	for i, turn := range parsed.Turns {
		ts := time.UnixMilli(turn.Timestamp).UTC().Format(time.RFC3339)
		fmt.Printf("--- Turn %d (%s) ---\n", i+1, ts)
		fmt.Printf("Q: %s\n", turn.Question)
		fmt.Printf("A: %s\n", turn.Answer)
		if !turn.Verified {
			fmt.Println("   (answer was not verified)")
		}
	}
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	sessionId := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s", getOrchestratorBaseURL(), sessionId)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		log.Fatalf("Could not create the request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach the orchestrator: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned status %d: %s", resp.StatusCode, string(body))
	}
	fmt.Printf("Deleted session %s\n", sessionId)
}
