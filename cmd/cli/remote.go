package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
)

var mediaCmd = &cobra.Command{
	Use:   "media [context-id]",
	Short: "List media the server detected for a browsing context",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var resp app.Response
		getJSON("/api/v1/contexts/"+url.PathEscape(args[0])+"/media", &resp)

		if len(resp.Media) == 0 {
			fmt.Println("No media detected")
			return
		}
		printMedia(resp.Media)
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show job history recorded by the server",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")

		var history struct {
			Jobs  []domain.JobRecord `json:"jobs"`
			Stats domain.JobStats    `json:"stats"`
		}
		getJSON(fmt.Sprintf("/api/v1/jobs?limit=%d", limit), &history)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tURL\tKIND\tSTATE\tFILE\tCREATED")
		for _, j := range history.Jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(j.JobID, 12),
				truncate(j.URL, 40),
				j.Kind,
				j.State,
				truncate(j.ResultFile, 30),
				j.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()

		fmt.Println()
		fmt.Println("Job Statistics:")
		fmt.Printf("  Total:    %d\n", history.Stats.Total)
		fmt.Printf("  Polling:  %d\n", history.Stats.Polling)
		fmt.Printf("  Finished: %d\n", history.Stats.Finished)
		fmt.Printf("  Failed:   %d\n", history.Stats.Failed)
	},
}

func getJSON(path string, v interface{}) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		fail("%v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fail("%s", string(body))
	}
	if err := json.Unmarshal(body, v); err != nil {
		fail("failed to decode response: %v", err)
	}
}

func init() {
	jobsCmd.Flags().IntP("limit", "n", 20, "Number of jobs to show")
}
