package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/mediagrab/internal/domain"
)

var submitCmd = &cobra.Command{
	Use:   "submit [url]",
	Short: "Start a transfer on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		filename, _ := cmd.Flags().GetString("filename")
		referer, _ := cmd.Flags().GetString("referer")

		var result struct {
			TransferID string `json:"transfer_id"`
		}
		err := newAPIClient(serverURL).post("/api/v1/transfers", map[string]string{
			"url":      args[0],
			"filename": filename,
			"referer":  referer,
		}, &result)
		if err != nil {
			return err
		}

		fmt.Printf("Transfer started: %s\n", result.TransferID)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [transfer-id]",
	Short: "Show live transfer status from the server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		client := newAPIClient(serverURL)

		fetch := func() ([]domain.StatusSnapshot, error) {
			if len(args) == 1 {
				var snap domain.StatusSnapshot
				if err := client.get("/api/v1/transfers/"+args[0], &snap); err != nil {
					return nil, err
				}
				return []domain.StatusSnapshot{snap}, nil
			}
			var snaps []domain.StatusSnapshot
			err := client.get("/api/v1/transfers", &snaps)
			return snaps, err
		}

		if !watch {
			snaps, err := fetch()
			if err != nil {
				return err
			}
			printSnapshots(os.Stdout, snaps)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			snaps, err := fetch()
			if err != nil {
				return err
			}
			fmt.Print("\033[H\033[2J")
			printSnapshots(os.Stdout, snaps)

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	submitCmd.Flags().StringP("filename", "o", "", "Name of the published file (default from the URL)")
	submitCmd.Flags().StringP("referer", "r", "", "Referer page the URL was found on")

	statusCmd.Flags().BoolP("watch", "w", false, "Refresh until interrupted")
	statusCmd.Flags().Duration("interval", time.Second, "Refresh interval for --watch")

	rootCmd.AddCommand(submitCmd)
}

func printSnapshots(out io.Writer, snaps []domain.StatusSnapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No active transfers")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATE\tPROGRESS")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncate(s.TransferID, 8),
			truncate(s.Title, 40),
			s.State,
			formatProgress(s.BytesSoFar, s.TotalBytes))
	}
	w.Flush()
}

// formatProgress renders done/total with a percentage when the total is known
func formatProgress(done, total int64) string {
	if total <= 0 {
		return formatBytes(done)
	}
	return fmt.Sprintf("%s / %s (%.1f%%)", formatBytes(done), formatBytes(total), float64(done)*100/float64(total))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
