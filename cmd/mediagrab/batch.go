package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// BatchItem is one request in a batch file
type BatchItem struct {
	URL      string `yaml:"url"`
	Filename string `yaml:"filename,omitempty"`
	Referer  string `yaml:"referer,omitempty"`
}

// BatchFile is the YAML document read by the batch command
type BatchFile struct {
	Referer string      `yaml:"referer,omitempty"` // default for items without one
	Items   []BatchItem `yaml:"items"`
}

// parseBatchFile decodes a batch document and applies the file-level referer
func parseBatchFile(data []byte) ([]BatchItem, error) {
	var file BatchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(file.Items) == 0 {
		return nil, fmt.Errorf("batch file has no items")
	}
	for i := range file.Items {
		if file.Items[i].URL == "" {
			return nil, fmt.Errorf("item %d: url is required", i+1)
		}
		if file.Items[i].Referer == "" {
			file.Items[i].Referer = file.Referer
		}
	}
	return file.Items, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch [file.yaml]",
	Short: "Download every URL listed in a YAML file",
	Long: `Download every item of a YAML batch file in this process:

  referer: https://example.com/gallery
  items:
    - url: https://cdn.example.com/a.mp4
    - url: https://cdn.example.com/b.mp4
      filename: second.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parallel, _ := cmd.Flags().GetInt("parallel")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}
		items, err := parseBatchFile(data)
		if err != nil {
			return err
		}

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

		return runBatch(ctx, items, parallel, func(ctx context.Context, item BatchItem) (string, error) {
			result, err := e.router.Run(ctx, item.URL, item.Filename, item.Referer, nil)
			if err != nil {
				return "", err
			}
			return result.Location, nil
		})
	},
}

func init() {
	batchCmd.Flags().IntP("parallel", "p", 2, "Number of items downloaded at once")
}

// runBatch runs fetch for every item with at most parallel in flight.
// One failing item does not stop the others; all failures are returned together.
func runBatch(ctx context.Context, items []BatchItem, parallel int, fetch func(context.Context, BatchItem) (string, error)) error {
	if parallel < 1 {
		parallel = 1
	}

	var (
		mu     sync.Mutex
		errs   error
		failed int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			location, err := fetch(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", item.URL, err))
				fmt.Printf("[%d/%d] FAILED %s: %v\n", i+1, len(items), item.URL, err)
				return nil
			}
			fmt.Printf("[%d/%d] %s -> %s\n", i+1, len(items), item.URL, location)
			return nil
		})
	}
	g.Wait()

	if errs != nil {
		return fmt.Errorf("%d of %d items failed: %w", failed, len(items), errs)
	}
	return nil
}
