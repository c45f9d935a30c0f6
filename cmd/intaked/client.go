package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse matches internal/httpapi/server.go HealthResponse.
type HealthResponse struct {
	Status       string `json:"status"`
	QueuePending int    `json:"queue_pending"`
}

// SyncResponse matches internal/httpapi/server.go SyncResponse.
type SyncResponse struct {
	Successful    int      `json:"successful"`
	Deduplicated  int      `json:"deduplicated"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
	AllSuccessful bool     `json:"all_successful"`
}

// QueueAction mirrors the queue entries returned by GET /api/v1/queue.
type QueueAction struct {
	ID             string `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	RetryCount     int    `json:"retry_count"`
	LastError      string `json:"last_error,omitempty"`
}

// QueueResponse matches internal/httpapi/server.go QueueResponse.
type QueueResponse struct {
	Pending int           `json:"pending"`
	Failed  []QueueAction `json:"failed"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check intaked server health",
	Long: `Check the health of a running intaked daemon, including the offline
queue depth.

Examples:
  # Check health
  intaked health

  # Check health on a different server
  intaked health --server http://localhost:8080`,
	RunE: runHealth,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the offline capture queue",
	Long: `Ask a running intaked daemon to deliver all queued captures to the
record store.

Examples:
  # Drain the queue
  intaked sync`,
	RunE: runSync,
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Restore the most recently deleted record",
	Long: `Undo the most recent soft delete. Fails if the undo window has
already passed.

Examples:
  # Undo the last delete
  intaked undo`,
	RunE: runUndo,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show offline queue status",
	Long: `Show the pending depth of the offline capture queue and any actions
parked after exhausting their retries.`,
	RunE: runQueue,
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// decodeOrFail reads an error body when the status is unexpected.
func decodeOrFail(resp *http.Response, want int, out any) error {
	if resp.StatusCode != want {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	resp, err := httpClient().Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := decodeOrFail(resp, http.StatusOK, &health); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	fmt.Printf("Queue Pending: %d\n", health.QueuePending)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/sync", serverURL)

	resp, err := httpClient().Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("a sync is already running")
	}

	var sync SyncResponse
	if err := decodeOrFail(resp, http.StatusOK, &sync); err != nil {
		return err
	}

	fmt.Printf("Delivered:    %d\n", sync.Successful)
	fmt.Printf("Deduplicated: %d\n", sync.Deduplicated)
	fmt.Printf("Failed:       %d\n", sync.Failed)
	for _, e := range sync.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}
	if !sync.AllSuccessful {
		return fmt.Errorf("sync finished with failures")
	}
	return nil
}

func runUndo(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/undo", serverURL)

	resp, err := httpClient().Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusGone:
		return fmt.Errorf("the undo window has passed")
	case http.StatusNotFound:
		return fmt.Errorf("nothing to undo")
	}

	var restored struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := decodeOrFail(resp, http.StatusOK, &restored); err != nil {
		return err
	}

	fmt.Printf("Restored %q (%s)\n", restored.Title, restored.ID)
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/queue", serverURL)

	resp, err := httpClient().Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	var q QueueResponse
	if err := decodeOrFail(resp, http.StatusOK, &q); err != nil {
		return err
	}

	fmt.Printf("Pending: %d\n", q.Pending)
	if len(q.Failed) == 0 {
		return nil
	}
	fmt.Printf("Failed:\n")
	for _, a := range q.Failed {
		fmt.Printf("  %s %s (retries %d): %s\n", a.ID, a.IdempotencyKey, a.RetryCount, a.LastError)
	}
	return nil
}
