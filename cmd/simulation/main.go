// simulation drives a running daemon with bursts of random-priority tasks
// and prints the scheduler's decisions, so dispatch behavior can be watched
// under sustained load.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

const (
	simulationDuration = 5 * time.Minute
	injectionInterval  = 5 * time.Second
)

var priorities = []string{"low", "low", "medium", "medium", "medium", "high", "high", "critical"}

func main() {
	baseURL := os.Getenv("TASKPILOT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 10 * time.Second}
	if _, err := client.Get(baseURL + "/api/v1/health"); err != nil {
		log.Fatal("daemon unreachable (is schedulerd running?): ", err)
	}

	fmt.Println("Starting 5-minute traffic simulation...")
	fmt.Println("   Watching scheduler decisions...")

	endTime := time.Now().Add(simulationDuration)
	ticker := time.NewTicker(injectionInterval)
	defer ticker.Stop()

	// Watch the system report in background
	go watchReport(client, baseURL)

	taskCount := 0

	for range ticker.C {
		if time.Now().After(endTime) {
			fmt.Println("\nSimulation complete.")
			return
		}

		// Generate a batch of tasks
		batchSize := rand.Intn(5) + 1 // 1-5 tasks
		fmt.Printf("\n[Generator] Injecting %d new tasks...\n", batchSize)

		for i := 0; i < batchSize; i++ {
			taskCount++
			payload := map[string]any{
				"description": fmt.Sprintf("sim-task-%d", taskCount),
				"priority":    priorities[rand.Intn(len(priorities))],
			}
			// Some tasks get a tight attempt budget
			if rand.Float64() < 0.3 {
				payload["max_attempts"] = 1
			}

			body, _ := json.Marshal(payload)
			resp, err := client.Post(baseURL+"/api/v1/tasks", "application/json", bytes.NewReader(body))
			if err != nil {
				log.Printf("Failed to submit task %d: %v", taskCount, err)
				continue
			}
			resp.Body.Close()
		}
	}
}

type reportView struct {
	TotalTasks  int            `json:"total_tasks"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Running     int            `json:"running"`
	Queued      int            `json:"queued"`
	QueueDepths map[string]int `json:"queue_depths"`
	HealthScore int            `json:"health_score"`
}

func watchReport(client *http.Client, baseURL string) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		resp, err := client.Get(baseURL + "/api/v1/report")
		if err != nil {
			log.Println("Report fetch error:", err)
			continue
		}

		var view reportView
		err = json.NewDecoder(resp.Body).Decode(&view)
		resp.Body.Close()
		if err != nil {
			log.Println("Report decode error:", err)
			continue
		}

		fmt.Printf("   [Report] total=%d ok=%d failed=%d running=%d queued=%d health=%d depths=%v\n",
			view.TotalTasks, view.Succeeded, view.Failed, view.Running, view.Queued,
			view.HealthScore, view.QueueDepths)
	}
}
