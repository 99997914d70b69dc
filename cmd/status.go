package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		// List all jobs
		url := fmt.Sprintf("%s/api/v1/jobs", serverURL)
		return listJobs(url)
	}

	// Get specific job status
	jobID := args[0]
	url := fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID)
	return getJobStatus(url, jobID)
}

func listJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		config := job["config"].(map[string]interface{})
		fmt.Printf("Job ID: %s\n", job["id"])
		fmt.Printf("  State: %s\n", job["state"])
		fmt.Printf("  Objective: %s\n", config["objective"])
		fmt.Printf("  Dim: %v\n", config["dim"])
		if job["generation"] != nil && job["generation"].(float64) > 0 {
			fmt.Printf("  Score: %.4f -> %.4f (generation %v)\n",
				job["initialScore"], job["bestScore"], job["generation"])
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// Display status
	fmt.Printf("Job: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Println()

	config := status["config"].(map[string]interface{})
	fmt.Println("Configuration:")
	fmt.Printf("  Objective: %s\n", config["objective"])
	fmt.Printf("  Dim: %v\n", config["dim"])
	fmt.Printf("  Generations: %v\n", config["generations"])
	fmt.Printf("  Generation size: %v\n", config["generationSize"])
	fmt.Printf("  Refine count: %v\n", config["refineCount"])
	fmt.Println()

	fmt.Println("Progress:")
	if status["generation"] != nil {
		fmt.Printf("  Generation: %v\n", status["generation"])
	}
	if status["initialScore"] != nil && status["bestScore"] != nil {
		initial := status["initialScore"].(float64)
		best := status["bestScore"].(float64)
		fmt.Printf("  Initial Score: %.4f\n", initial)
		fmt.Printf("  Best Score: %.4f\n", best)
		fmt.Printf("  Improvement: %.4f\n", best-initial)
	}

	if status["elapsed"] != nil {
		elapsed := time.Duration(status["elapsed"].(float64) * float64(time.Second))
		fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	}

	if status["eps"] != nil && status["eps"].(float64) > 0 {
		fmt.Printf("  Throughput: %.0f evals/sec\n", status["eps"])
	}

	if status["error"] != nil && status["error"].(string) != "" {
		fmt.Printf("\nError: %s\n", status["error"])
	}

	return nil
}
