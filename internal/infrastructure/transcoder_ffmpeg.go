package infrastructure

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/pkg/logger"
	"go.uber.org/zap"
)

// FFmpegTranscoder remuxes segmented playlists with an external ffmpeg binary
type FFmpegTranscoder struct {
	binary    string
	extraArgs []string
	logsDir   string
	logs      *logger.LoggerAdapter
}

// NewFFmpegTranscoder creates a new ffmpeg transcoder.
// Raw ffmpeg output is appended to transcode-YYYYMMDD.log in logsDir.
func NewFFmpegTranscoder(config *domain.TranscodeConfig, logsDir string, logs *logger.LoggerAdapter) *FFmpegTranscoder {
	binary := config.FFmpegBinary
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegTranscoder{
		binary:    binary,
		extraArgs: strings.Fields(config.ExtraArgs),
		logsDir:   logsDir,
		logs:      logs,
	}
}

// Remux copies the streams of playlistURL into out without re-encoding
func (t *FFmpegTranscoder) Remux(ctx context.Context, playlistURL string, headers map[string]string, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	args := t.buildArgs(playlistURL, headers, out)

	logFile, err := t.openLogFile()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	writeLogHeader(logFile, filepath.Base(out), FormatCommandLine(t.binary, args...))
	t.logs.Transfer().Info("Starting remux",
		zap.String("playlist", playlistURL),
		zap.String("output", out))

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		writeLogFooter(logFile, false, fmt.Sprintf("ffmpeg failed: %v", err))
		os.Remove(out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		writeLogFooter(logFile, false, "no output produced")
		os.Remove(out)
		return fmt.Errorf("ffmpeg produced no output at %s", out)
	}

	writeLogFooter(logFile, true, fmt.Sprintf("Remuxed: %s (%d bytes)", out, info.Size()))
	return nil
}

func (t *FFmpegTranscoder) buildArgs(playlistURL string, headers map[string]string, out string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "warning", "-y"}
	if block := headerBlock(headers); block != "" {
		args = append(args, "-headers", block)
	}
	args = append(args, t.extraArgs...)
	return append(args, "-i", playlistURL, "-c", "copy", out)
}

// headerBlock renders headers as CRLF-terminated lines in a stable order
func headerBlock(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	return b.String()
}

func (t *FFmpegTranscoder) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(t.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := filepath.Join(t.logsDir, "transcode-"+time.Now().Format("20060102")+".log")
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func writeLogHeader(file *os.File, name, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(file, "\n=== [%s] Transcode: %s ===\n", timestamp, name)
	fmt.Fprintf(file, "$ %s\n", cmdLine)
}

func writeLogFooter(file *os.File, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(file, "[%s] %s: %s\n", timestamp, status, message)
	file.WriteString("=== END ===\n\n")
}
