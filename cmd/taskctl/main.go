// taskctl is the operator CLI: submit a task, query status, cancel, and dump
// reports as JSON. Exit code 0 on success, 1 on validation or transport
// failure.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	baseURL := os.Getenv("TASKPILOT_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "submit":
		err = runSubmit(client, baseURL, args)
	case "status":
		err = runGet(client, baseURL+"/api/v1/tasks/"+requireID(args))
	case "cancel":
		err = runCancel(client, baseURL, requireID(args))
	case "report":
		err = runGet(client, baseURL+"/api/v1/tasks/"+requireID(args)+"/report")
	case "system":
		err = runGet(client, baseURL+"/api/v1/report")
	case "workers":
		err = runGet(client, baseURL+"/api/v1/workers")
	case "cluster":
		err = runGet(client, baseURL+"/api/v1/workers/cluster")
	case "archive":
		err = runGet(client, baseURL+"/api/v1/tasks/archive")
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: taskctl <command> [flags]

commands:
  submit -d <description> [-p low|medium|high|critical] [-a maxAttempts] [-c cap1,cap2]
  status <task-id>
  cancel <task-id>
  report <task-id>
  system
  workers
  cluster
  archive

TASKPILOT_URL overrides the default endpoint (http://localhost:8080).`)
}

func requireID(args []string) string {
	if len(args) < 1 || args[0] == "" {
		usage()
		os.Exit(1)
	}
	return args[0]
}

func runSubmit(client *http.Client, baseURL string, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	description := fs.String("d", "", "task description (required)")
	priority := fs.String("p", "", "priority level")
	attempts := fs.Int("a", 0, "max attempts (0 = server default)")
	caps := fs.String("c", "", "comma separated required capabilities")
	_ = fs.Parse(args)

	payload := map[string]any{
		"description": *description,
	}
	if *priority != "" {
		payload["priority"] = *priority
	}
	if *attempts > 0 {
		payload["max_attempts"] = *attempts
	}
	if *caps != "" {
		payload["required_capabilities"] = strings.Split(*caps, ",")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := client.Post(baseURL+"/api/v1/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp, http.StatusCreated)
}

func runCancel(client *http.Client, baseURL, id string) error {
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/api/v1/tasks/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		fmt.Println(`{"cancelled":true}`)
		return nil
	}
	return printResponse(resp, http.StatusNoContent)
}

func runGet(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp, http.StatusOK)
}

// printResponse pretty-prints the JSON body and maps non-expected statuses
// onto a non-zero exit.
func printResponse(resp *http.Response, want int) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode != want {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
