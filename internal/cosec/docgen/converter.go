package docgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Converter turns a word-processor document into PDF bytes.
type Converter interface {
	Convert(ctx context.Context, doc []byte) ([]byte, error)
}

// ConverterConfig tunes SofficeConverter.
type ConverterConfig struct {
	// Binaries are tried in order; the first found on PATH is used.
	Binaries []string
	WorkDir  string
	Timeout  time.Duration
	// MaxConcurrent bounds the number of engine processes alive at once.
	MaxConcurrent int64
}

// SofficeConverter runs a headless office suite once per document. The exit
// status of the engine is not trusted: a conversion succeeded only if the
// expected PDF exists and is non-empty.
type SofficeConverter struct {
	cfg     ConverterConfig
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewSofficeConverter(cfg ConverterConfig, m *metrics.Metrics, logger *zap.Logger) *SofficeConverter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &SofficeConverter{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		metrics: m,
		logger:  logger.Named("converter"),
	}
}

func (c *SofficeConverter) binary() (string, error) {
	for _, name := range c.cfg.Binaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", &e.ConversionError{Reason: fmt.Sprintf("conversion binary not found (tried %v)", c.cfg.Binaries)}
}

func (c *SofficeConverter) Convert(ctx context.Context, doc []byte) (out []byte, err error) {
	bin, err := c.binary()
	if err != nil {
		return nil, err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for converter slot: %w", err)
	}
	defer c.sem.Release(1)

	c.metrics.ConversionStarted()
	start := time.Now()
	defer func() {
		c.metrics.ConversionFinished()
		c.metrics.ObserveConversion(time.Since(start), err == nil)
	}()

	dir, err := os.MkdirTemp(c.cfg.WorkDir, "convert-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	base := "input-" + uuid.NewString()
	in := filepath.Join(dir, base+".docx")
	pdf := filepath.Join(dir, base+".pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, fmt.Errorf("write conversion input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	args := []string{
		"--headless", "--nologo", "--nolockcheck", "--nodefault", "--invisible",
		"--convert-to", "pdf:writer_pdf_Export",
		"--outdir", dir,
		in,
	}
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second
	// A fresh profile per run keeps parallel engines from locking each other out.
	cmd.Env = append(os.Environ(), "HOME="+dir)
	output, runErr := cmd.CombinedOutput()
	command := append([]string{bin}, args...)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &e.ConversionError{
			Reason:  fmt.Sprintf("timed out after %s", c.cfg.Timeout),
			Command: command,
			Output:  string(output),
		}
	}
	info, statErr := os.Stat(pdf)
	if statErr != nil || info.Size() == 0 {
		reason := "engine produced no output"
		if runErr != nil {
			reason = fmt.Sprintf("engine produced no output (%v)", runErr)
		}
		return nil, &e.ConversionError{Reason: reason, Command: command, Output: string(output)}
	}
	if runErr != nil {
		c.logger.Warn("Conversion engine reported an error but produced output",
			zap.Error(runErr),
			zap.ByteString("output", output),
		)
	}
	return os.ReadFile(pdf)
}
