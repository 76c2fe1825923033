package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

// Snapshot is the backup of one activity. Closing it releases any scratch storage.
type Snapshot struct {
	Content     io.ReadCloser
	ContentHash string
	Size        int64
}

// SnapshotProducer creates activity backups.
type SnapshotProducer interface {
	Produce(ctx context.Context, activityID int64) (*Snapshot, error)
}

// CommandSnapshotConfig configures the backup command. Command is split on whitespace and the
// tokens {activity} and {output} are substituted per argument.
type CommandSnapshotConfig struct {
	Command string
	WorkDir string
	Timeout time.Duration
}

// CommandSnapshotProducer runs an external backup command writing to a scratch file.
type CommandSnapshotProducer struct {
	args    []string
	workDir string
	timeout time.Duration
	logger  *zap.Logger
}

// NewCommandSnapshotProducer validates cfg and builds the producer.
func NewCommandSnapshotProducer(cfg CommandSnapshotConfig, logger *zap.Logger) (*CommandSnapshotProducer, error) {
	args := strings.Fields(cfg.Command)
	if len(args) == 0 {
		return nil, fmt.Errorf("snapshot command is empty")
	}
	if !strings.Contains(cfg.Command, "{output}") {
		return nil, fmt.Errorf("snapshot command must reference {output}")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Hour
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandSnapshotProducer{args: args, workDir: workDir, timeout: cfg.Timeout, logger: logger}, nil
}

// Produce runs the command for activityID and returns its output.
func (p *CommandSnapshotProducer) Produce(ctx context.Context, activityID int64) (*Snapshot, error) {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot work dir: %w", err)
	}
	scratch, err := os.CreateTemp(p.workDir, fmt.Sprintf("snapshot-%d-*.mbz", activityID))
	if err != nil {
		return nil, fmt.Errorf("create snapshot scratch file: %w", err)
	}
	output := scratch.Name()
	scratch.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	replacer := strings.NewReplacer("{activity}", strconv.FormatInt(activityID, 10), "{output}", output)
	args := make([]string, len(p.args))
	for i, arg := range p.args {
		args[i] = replacer.Replace(arg)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = p.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(output) //nolint:errcheck
		p.logger.Sugar().Errorw("snapshot command failed", "activity_id", activityID, "output", tail(out, 2048), "error", err)
		return nil, fmt.Errorf("snapshot command: %w", err)
	}
	p.logger.Sugar().Infow("snapshot produced", "activity_id", activityID, "duration", time.Since(start))

	f, err := os.Open(output)
	if err != nil {
		os.Remove(output) //nolint:errcheck
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()         //nolint:errcheck
		os.Remove(output) //nolint:errcheck
		return nil, fmt.Errorf("hash snapshot: %w", err)
	}
	if size == 0 {
		f.Close()         //nolint:errcheck
		os.Remove(output) //nolint:errcheck
		return nil, appErrors.ErrSnapshotEmpty
	}

	return &Snapshot{
		Content:     &scratchFile{File: f, path: output},
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		Size:        size,
	}, nil
}

type scratchFile struct {
	*os.File
	path string
}

func (s *scratchFile) Close() error {
	err := s.File.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
