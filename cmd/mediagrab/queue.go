package main

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/mediagrab/internal/domain"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the server's download queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		destination, _ := cmd.Flags().GetString("filename")
		title, _ := cmd.Flags().GetString("title")
		referer, _ := cmd.Flags().GetString("referer")

		payload := map[string]interface{}{"url": args[0]}
		if destination != "" {
			payload["destination"] = destination
		}
		if title != "" {
			payload["title"] = title
		}
		if referer != "" {
			payload["headers"] = map[string]string{"Referer": referer}
		}

		var entry domain.QueueEntry
		if err := newAPIClient(serverURL).post("/api/v1/queue", payload, &entry); err != nil {
			return err
		}

		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID: %s\n", entry.ID)
		fmt.Printf("Status: %s\n", entry.Status)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/queue"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var entries []domain.QueueEntry
		if err := newAPIClient(serverURL).get(path, &entries); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDESTINATION\tSTATUS\tPROGRESS\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncate(e.ID, 8),
				truncate(e.Destination, 40),
				e.Status,
				formatProgress(e.BytesDone, e.BytesTotal),
				e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var stats domain.QueueStats
		if err := newAPIClient(serverURL).get("/api/v1/queue/stats", &stats); err != nil {
			return err
		}

		fmt.Println("Queue Statistics:")
		fmt.Printf("  Total:     %d\n", stats.Total)
		fmt.Printf("  Pending:   %d\n", stats.Pending)
		fmt.Printf("  Running:   %d\n", stats.Running)
		fmt.Printf("  Paused:    %d\n", stats.Paused)
		fmt.Printf("  Succeeded: %d\n", stats.Succeeded)
		fmt.Printf("  Failed:    %d\n", stats.Failed)
		fmt.Printf("  Cancelled: %d\n", stats.Cancelled)
		return nil
	},
}

var queueGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show queue entry details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var entry domain.QueueEntry
		if err := newAPIClient(serverURL).get("/api/v1/queue/"+url.PathEscape(args[0]), &entry); err != nil {
			return err
		}

		fmt.Printf("Queue Entry:\n")
		fmt.Printf("  ID:          %s\n", entry.ID)
		fmt.Printf("  URL:         %s\n", entry.URL)
		fmt.Printf("  Destination: %s\n", entry.Destination)
		fmt.Printf("  Status:      %s\n", entry.Status)
		fmt.Printf("  Progress:    %s\n", formatProgress(entry.BytesDone, entry.BytesTotal))
		fmt.Printf("  Retries:     %d\n", entry.RetryCount)
		fmt.Printf("  Created:     %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"))
		if entry.ErrorMessage != "" {
			fmt.Printf("  Error:       %s\n", entry.ErrorMessage)
		}
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel and remove a queue entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		if err := newAPIClient(serverURL).delete("/api/v1/queue/" + url.PathEscape(args[0])); err != nil {
			return err
		}
		fmt.Println("Entry cancelled successfully")
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed queue entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		if err := newAPIClient(serverURL).post("/api/v1/queue/"+url.PathEscape(args[0])+"/retry", nil, nil); err != nil {
			return err
		}
		fmt.Println("Entry queued for retry")
		return nil
	},
}

func init() {
	queueAddCmd.Flags().StringP("filename", "o", "", "Name of the published file (default from the URL)")
	queueAddCmd.Flags().StringP("title", "t", "", "Display title")
	queueAddCmd.Flags().StringP("referer", "r", "", "Referer header sent with the download")
	queueListCmd.Flags().StringP("status", "s", "", "Filter by status (pending, running, paused, succeeded, failed, cancelled)")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueGetCmd)
	queueCmd.AddCommand(queueCancelCmd)
	queueCmd.AddCommand(queueRetryCmd)
}
