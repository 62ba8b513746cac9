// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/spf13/cobra"
)

var askHTTPClient = &http.Client{Timeout: 5 * time.Minute}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Printf("Asking (collection '%s'): %s\n", askCollection, question)
	fmt.Println("---")

	resp, err := sendAskRequest(question, askCollection, askSessionId)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	result := resp.Result
	fmt.Printf("\nAnswer:\n%s\n", result.Answer)

	if result.Verified {
		fmt.Println("\nVerified: the answer is grounded in its sources and addresses the question.")
	} else {
		fmt.Printf("\nNOT VERIFIED: %s\n", result.FailureReason)
	}
	if result.WebSearchUsed {
		fmt.Println("(Web search was used to supplement local evidence.)")
	}

	if len(result.Passages) > 0 {
		fmt.Println("\nSources Used:")
		for i, p := range result.Passages {
			fmt.Printf("%d. [%s] %s (Score: %.2f)\n", i+1, p.Origin, firstLine(p.Source), p.Score)
		}
	} else {
		fmt.Println("\n(No sources were used for this answer)")
	}

	fmt.Printf("\nSession: %s\n", resp.SessionId)
	fmt.Println("---")
}

func sendAskRequest(question, collection, sessionId string) (*datatypes.AskResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"question":   question,
		"collection": collection,
		"session_id": sessionId,
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal the request: %w", err)
	}

	url := getOrchestratorBaseURL() + "/v1/ask"
	resp, err := askHTTPClient.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to reach the orchestrator at %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read the response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orchestrator returned status %d: %s", resp.StatusCode, string(body))
	}

	var askResp datatypes.AskResponse
	if err := json.Unmarshal(body, &askResp); err != nil {
		return nil, fmt.Errorf("failed to parse the response: %w", err)
	}
	if askResp.Result == nil {
		return nil, fmt.Errorf("orchestrator returned an empty result")
	}
	return &askResp, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
