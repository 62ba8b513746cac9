// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "savvy",
		Short: "A CLI for the KnowledgeSavvy validated answer service",
		Long: `Savvy talks to the orchestrator service to ask questions against
your ingested documents and to populate the evidence store.`,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a question against an evidence collection",
		Long:  `Sends a question to the orchestrator, which retrieves evidence, generates an answer, and validates it for grounding and relevance before returning it.`,
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}
	askCollection string
	askSessionId  string

	populateCmd = &cobra.Command{
		Use:   "populate",
		Short: "Populate the evidence store with scanned and approved content.",
	}
	populateVectorDBCmd = &cobra.Command{
		Use:   "vectordb [file or directory path]",
		Short: "Scans local files for secrets before populating the evidence store",
		Args:  cobra.MinimumNArgs(1),
		Run:   populateVectorDB,
	}
	populateCollection string

	// Session administration commands
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}
	sessionHistoryCmd = &cobra.Command{
		Use:   "history [session_id]",
		Short: "Show the stored turns of a conversation session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionHistory,
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a conversation session and its history",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession,
	}
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askCollection, "collection", "c", "default",
		"Evidence collection to retrieve from")
	askCmd.Flags().StringVar(&askSessionId, "session", "",
		"Continue an existing conversation session")

	rootCmd.AddCommand(populateCmd)
	populateCmd.AddCommand(populateVectorDBCmd)
	populateVectorDBCmd.Flags().StringVarP(&populateCollection, "collection", "c", "default",
		"Evidence collection to ingest into")

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(deleteSessionCmd)
}

// getOrchestratorBaseURL resolves the service address, env first.
func getOrchestratorBaseURL() string {
	if url := os.Getenv("SAVVY_ORCHESTRATOR_URL"); url != "" {
		return url
	}
	return "http://localhost:12210"
}
