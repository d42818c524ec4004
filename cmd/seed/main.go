package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Seeds a running instance with a few sample ideas over the public API,
// so the pipeline and the progress endpoint have something to chew on.
func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "API base URL")
	flag.Parse()

	samples := []string{
		"A mobile app that connects freelance tutors with students for on-demand video lessons",
		"A subscription service that delivers regionally sourced meal kits for people with strict allergies",
		"An AI assistant that drafts compliance reports for small fintech companies",
	}

	client := &http.Client{Timeout: 15 * time.Second}
	for _, content := range samples {
		body, _ := json.Marshal(map[string]any{
			"content":  content,
			"metadata": map[string]string{"source": "seed"},
		})
		resp, err := client.Post(*baseURL+"/api/v1/ideas", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Fatalf("submit idea: %v", err)
		}
		var created struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			resp.Body.Close()
			log.Fatalf("decode response: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			log.Fatalf("submit rejected with status %d", resp.StatusCode)
		}
		fmt.Printf("seeded: job=%s status=%s\n", created.JobID, created.Status)
	}

	fmt.Println("Seeding complete.")
}
