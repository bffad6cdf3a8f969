// monitor pretty-prints the scheduler daemon's JSON logs as a live task
// activity feed. Pipe the daemon's output into it:
//
//	./schedulerd 2>&1 | ./monitor
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LogEntry matches the Zap JSON structure
type LogEntry struct {
	Level    string `json:"level"`
	Msg      string `json:"msg"`
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
	Status   string `json:"status"`
	Attempt  int    `json:"attempt"`
	Error    string `json:"error"`
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

func main() {
	fmt.Println(colorCyan + "Task Activity Monitor" + colorReset)
	fmt.Println(colorGray + "Reading scheduler logs from stdin..." + colorReset)
	fmt.Println("-------------------------------------------------------------------------")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		start := strings.IndexByte(line, '{')
		if start < 0 {
			continue
		}

		var entry LogEntry
		if err := json.Unmarshal([]byte(line[start:]), &entry); err != nil {
			// Not a JSON log or different format, ignore
			continue
		}

		prettify(entry)
	}
}

func prettify(entry LogEntry) {
	switch {
	case strings.Contains(entry.Msg, "Task submitted"):
		fmt.Printf(colorYellow+"Queued:"+colorReset+"    %s\n", entry.TaskID)
	case strings.Contains(entry.Msg, "Task dispatched"):
		fmt.Printf(colorBlue+"Running:"+colorReset+"   %s -> %s (attempt %d)\n", entry.TaskID, entry.WorkerID, entry.Attempt)
	case strings.Contains(entry.Msg, "Task failed, will retry"):
		fmt.Printf(colorYellow+"Retrying:"+colorReset+"  %s (%s)\n", entry.TaskID, entry.Error)
	case strings.Contains(entry.Msg, "Task finalized") && entry.Status == "completed":
		fmt.Printf(colorGreen+"Completed:"+colorReset+" %s\n", entry.TaskID)
	case strings.Contains(entry.Msg, "Task finalized") && entry.Status == "failed":
		fmt.Printf(colorRed+"Failed:"+colorReset+"    %s\n", entry.TaskID)
	case strings.Contains(entry.Msg, "Task timed out"):
		fmt.Printf(colorRed+"Timeout:"+colorReset+"   %s on %s\n", entry.TaskID, entry.WorkerID)
	case entry.Level == "error" || entry.Level == "ERROR":
		fmt.Printf(colorRed+"ERROR:"+colorReset+"     %s\n", entry.Msg)
	}
}
