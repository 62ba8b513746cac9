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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
	"github.com/spf13/cobra"
)

const ingestWorkers = 4

var blockedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

var allowedFileExts = map[string]bool{
	".txt": true, ".md": true, ".rst": true,
	".py": true, ".go": true, ".js": true, ".ts": true,
	".java": true, ".c": true, ".cpp": true, ".rs": true,
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
}

func fileWorker(id int, wg *sync.WaitGroup, jobs <-chan string, orchestratorURL, collection string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Minute}

	for file := range jobs {
		fmt.Printf("[Worker %d] Ingesting: %s\n", id, file)
		content, err := os.ReadFile(file)
		if err != nil {
			log.Printf("[Worker %d] Could not read file %s: %v", id, file, err)
			continue
		}

		postBody, err := json.Marshal(map[string]string{
			"source":     file,
			"content":    string(content),
			"collection": collection,
		})
		if err != nil {
			log.Printf("[Worker %d] could not create request for file %s: %v", id, file, err)
			continue
		}

		resp, err := client.Post(orchestratorURL, "application/json", bytes.NewBuffer(postBody))
		if err != nil {
			log.Printf("[Worker %d] Failed to send data for %s to orchestrator: %v", id, file, err)
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			log.Printf("[Worker %d] Orchestrator error for %s, status %d: %s\n", id,
				file, resp.StatusCode, string(bodyBytes))
		} else {
			var ingestResp map[string]interface{}
			if err := json.Unmarshal(bodyBytes, &ingestResp); err == nil {
				log.Printf("[Worker %d] Ingested %s (chunks: %.0f)\n", id,
					ingestResp["source"], ingestResp["chunks_processed"])
			} else {
				log.Printf("[Worker %d] Ingested %s (response unclear)\n", id, file)
			}
		}
		resp.Body.Close()
	}
}

func populateVectorDB(cmd *cobra.Command, args []string) {
	orchestratorURL := getOrchestratorBaseURL() + "/v1/documents"

	fmt.Println("Finding all files to ingest...")
	var allFiles []string
	for _, path := range args {
		err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if blockedDirs[info.Name()] {
					log.Printf("Skipping blocked directory: %s\n", p)
					return filepath.SkipDir
				}
				return nil
			}
			if allowedFileExts[filepath.Ext(p)] {
				allFiles = append(allFiles, p)
			}
			return nil
		})
		if err != nil {
			log.Printf("Error walking path %s: %v", path, err)
		}
	}
	if len(allFiles) == 0 {
		fmt.Println("No valid files found to process.")
		return
	}
	fmt.Printf("Found %d files. Starting policy scan...\n", len(allFiles))

	engine, err := policy.NewEngine()
	if err != nil {
		log.Fatalf("Could not initialize the policy engine: %v", err)
	}

	// Client-side pre-scan: files with secret findings never leave the
	// machine. The server scans again on its side.
	var approved []string
	var allFindings []policy.Finding
	for _, file := range allFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Printf("Could not read file %s for scanning: %v", file, err)
			continue
		}
		findings := engine.Scan(string(content))
		secretCount := 0
		for _, f := range findings {
			if f.CategoryName == "secret" {
				secretCount++
			}
		}
		if secretCount > 0 {
			log.Printf("SKIPPING %s: %d secret finding(s)", file, secretCount)
			allFindings = append(allFindings, findings...)
			continue
		}
		approved = append(approved, file)
	}
	if len(allFindings) > 0 {
		logFindingsToFile(allFindings)
	}
	if len(approved) == 0 {
		fmt.Println("No files passed the policy scan.")
		return
	}

	fmt.Printf("Ingesting %d approved files into collection '%s'...\n",
		len(approved), populateCollection)

	jobs := make(chan string, len(approved))
	var wg sync.WaitGroup
	for w := 1; w <= ingestWorkers; w++ {
		wg.Add(1)
		go fileWorker(w, &wg, jobs, orchestratorURL, populateCollection)
	}
	for _, file := range approved {
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	fmt.Println("Population complete.")
}

func logFindingsToFile(findings []policy.Finding) {
	logFileName := fmt.Sprintf("scan_log_%s.json", time.Now().UTC().Format("20060102T150405Z"))

	file, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		log.Printf("Could not marshal findings to JSON: %v", err)
		return
	}
	if err := os.WriteFile(logFileName, file, 0644); err != nil {
		log.Printf("Could not write log file %s: %v", logFileName, err)
		return
	}

	fmt.Printf("\nScan log written to %s\n", logFileName)
}
