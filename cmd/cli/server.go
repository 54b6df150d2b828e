package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// isServerRunning checks if the server is responding to health checks
func isServerRunning() bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ensureServer exits with a hint when the server is not reachable
func ensureServer() {
	if isServerRunning() {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: grabber server is not reachable at %s\n", serverURL)
	fmt.Fprintln(os.Stderr, "Start it with: grabber-server --config <file>")
	os.Exit(1)
}
