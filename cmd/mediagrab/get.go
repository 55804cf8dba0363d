package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourusername/mediagrab/internal/domain"
)

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Download a URL in this process",
	Long: `Download a URL without a server. Large files that support byte ranges are
fetched in parallel parts; everything else is streamed. The finished file is
published to the configured library.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("filename")
		referer, _ := cmd.Flags().GetString("referer")
		quiet, _ := cmd.Flags().GetBool("quiet")

		config, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := newEngine(ctx, config, engineOptions{quiet: true})
		if err != nil {
			return err
		}
		defer e.Close()

		var listener domain.TransferListener
		if !quiet {
			listener = newProgressListener(os.Stderr, displayTitle(filename, args[0]))
		}

		result, err := e.router.Run(ctx, args[0], filename, referer, listener)
		if err != nil {
			return err
		}

		fmt.Printf("Saved: %s\n", result.Location)
		return nil
	},
}

func init() {
	getCmd.Flags().StringP("filename", "o", "", "Name of the published file (default from the URL)")
	getCmd.Flags().StringP("referer", "r", "", "Referer page the URL was found on")
	getCmd.Flags().BoolP("quiet", "q", false, "Don't show a progress bar")
}

// displayTitle is the progress bar label for a request
func displayTitle(filename, url string) string {
	if filename != "" {
		return truncate(filename, 30)
	}
	return truncate(url, 30)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
