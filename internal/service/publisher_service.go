package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"runtime/debug"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/storage"
)

// Bundle file extensions. Commit order is tsr, mbz then json, so a bundle with a json file is complete.
const (
	ExtSnapshot  = ".mbz"
	ExtMetadata  = ".json"
	ExtTimestamp = ".tsr"
)

// BundleStorage is the filesystem a bundle is published to.
type BundleStorage interface {
	EnsureDir(dir string) error
	SaveStream(filename string, r io.Reader) (int64, error)
	Publish(src, dst string) error
	Delete(filename string) error
	Path(filename string) string
}

// Timestamper signs a file with an RFC 3161 token.
type Timestamper interface {
	Stamp(ctx context.Context, dataPath, outPath string) error
}

type metadataBuilder interface {
	BuildMetadata(ctx context.Context, export *ArchiveExport, at time.Time) (*models.ArchiveMetadata, error)
	Encode(doc *models.ArchiveMetadata) ([]byte, error)
}

type historyWriter interface {
	Create(ctx context.Context, record *models.ArchiveHistoryRecord) error
}

// PreArchiveHook runs before a bundle is built.
type PreArchiveHook func(ctx context.Context, export *ArchiveExport) error

// PostArchiveHook runs after a run finished, successfully or not.
type PostArchiveHook func(ctx context.Context, export *ArchiveExport, success bool) error

// PublishState is a step of the publishing state machine.
type PublishState string

const (
	StateIdle            PublishState = "idle"
	StateSnapshotTaken   PublishState = "snapshot_taken"
	StateMetadataWritten PublishState = "metadata_written"
	StateSigned          PublishState = "signed"
	StateCommitted       PublishState = "committed"
	StateRecorded        PublishState = "recorded"
	StateRolledBack      PublishState = "rolled_back"
)

// PublisherService builds bundles and publishes them all-or-nothing.
type PublisherService struct {
	storage   BundleStorage
	snapshots SnapshotProducer
	metadata  metadataBuilder
	notary    Timestamper
	history   historyWriter
	cache     *ScheduleCache
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	preHooks  []PreArchiveHook
	postHooks []PostArchiveHook
}

// PublisherDeps groups the publisher collaborators. Storage nil means no archive directory is
// configured; Notary nil disables signing.
type PublisherDeps struct {
	Storage   BundleStorage
	Snapshots SnapshotProducer
	Metadata  metadataBuilder
	Notary    Timestamper
	History   historyWriter
	Cache     *ScheduleCache
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// NewPublisherService constructs the publisher.
func NewPublisherService(deps PublisherDeps) *PublisherService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherService{
		storage:   deps.Storage,
		snapshots: deps.Snapshots,
		metadata:  deps.Metadata,
		notary:    deps.Notary,
		history:   deps.History,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// AddPreHook registers a hook run before each archival.
func (s *PublisherService) AddPreHook(h PreArchiveHook) {
	if h != nil {
		s.preHooks = append(s.preHooks, h)
	}
}

// AddPostHook registers a hook run after each archival.
func (s *PublisherService) AddPostHook(h PostArchiveHook) {
	if h != nil {
		s.postHooks = append(s.postHooks, h)
	}
}

// BundleStem returns the file name stem shared by the files of a bundle.
func BundleStem(activityID int64, reason models.ArchiveReason, at time.Time) string {
	return fmt.Sprintf("%d-%d-%s", activityID, int(reason), at.Format(time.RFC3339))
}

type publishRun struct {
	export    *ArchiveExport
	at        time.Time
	stem      string
	courseDir string
	state     PublishState

	temps     []string
	committed []string
	signed    bool
}

func (r *publishRun) temp(ext string) string {
	return "." + r.stem + ext
}

func (r *publishRun) final(ext string) string {
	return path.Join(r.courseDir, r.stem+ext)
}

// Publish archives export. On any failure every file this run created is removed.
func (s *PublisherService) Publish(ctx context.Context, export *ArchiveExport) (*models.ArchiveBundle, error) {
	if err := s.ready(export); err != nil {
		s.clearSchedule(ctx, export)
		return nil, err
	}

	start := time.Now()
	s.runPreHooks(ctx, export)

	at := s.now().UTC().Truncate(time.Second)
	run := &publishRun{
		export:    export,
		at:        at,
		stem:      BundleStem(export.Activity.ID, export.Reason, at),
		courseDir: strconv.FormatInt(export.Course.ID, 10),
		state:     StateIdle,
	}

	bundle, err := s.execute(ctx, run)
	success := err == nil
	if !success {
		s.rollback(run)
	}

	s.clearSchedule(ctx, export)
	s.metrics.ObserveArchiveRun(export.Reason, success, time.Since(start))
	s.runPostHooks(ctx, export, success)

	if !success {
		s.logger.Error("archive run failed",
			zap.Int64("activity_id", export.Activity.ID),
			zap.String("reason", export.Reason.String()),
			zap.String("stem", run.stem),
			zap.Error(err),
		)
		return nil, err
	}
	s.logger.Info("archive published",
		zap.Int64("activity_id", export.Activity.ID),
		zap.Int64("course_id", export.Course.ID),
		zap.String("reason", export.Reason.String()),
		zap.String("stem", run.stem),
		zap.Bool("signed", bundle.Signed),
	)
	return bundle, nil
}

func (s *PublisherService) ready(export *ArchiveExport) error {
	if s.storage == nil {
		return appErrors.ErrArchiveDirectoryNotSet
	}
	if s.snapshots == nil {
		return appErrors.ErrSnapshotNotConfigured
	}
	if export == nil || export.Activity == nil || export.Course == nil {
		return appErrors.Clone(appErrors.ErrValidation, "export requires course and activity")
	}
	return nil
}

func (s *PublisherService) clearSchedule(ctx context.Context, export *ArchiveExport) {
	if export == nil || export.Activity == nil {
		return
	}
	reason := export.Reason
	if err := s.cache.Invalidate(ctx, export.Activity.ID, &reason); err != nil {
		s.logger.Warn("failed to clear schedule cache", zap.Int64("activity_id", export.Activity.ID), zap.Error(err))
	}
}

func (s *PublisherService) execute(ctx context.Context, run *publishRun) (*models.ArchiveBundle, error) {
	if err := s.takeSnapshot(ctx, run); err != nil {
		return nil, err
	}
	if err := s.writeMetadata(ctx, run); err != nil {
		return nil, err
	}
	if s.notary != nil {
		if err := s.sign(ctx, run); err != nil {
			return nil, err
		}
	}
	if err := s.commit(run); err != nil {
		return nil, err
	}
	if err := s.record(ctx, run); err != nil {
		return nil, err
	}
	return &models.ArchiveBundle{
		CourseID:   run.export.Course.ID,
		ActivityID: run.export.Activity.ID,
		Reason:     run.export.Reason,
		Stem:       run.stem,
		Files:      append([]string(nil), run.committed...),
		Signed:     run.signed,
		CreatedAt:  run.at,
	}, nil
}

func (s *PublisherService) takeSnapshot(ctx context.Context, run *publishRun) error {
	snap, err := s.snapshots.Produce(ctx, run.export.Activity.ID)
	if err != nil {
		if errors.Is(err, appErrors.ErrSnapshotEmpty) {
			return err
		}
		return appErrors.Internal(err, "failed to produce snapshot")
	}
	if snap == nil || snap.Content == nil || snap.ContentHash == "" {
		if snap != nil && snap.Content != nil {
			snap.Content.Close() //nolint:errcheck
		}
		return appErrors.ErrSnapshotEmpty
	}
	defer snap.Content.Close() //nolint:errcheck

	name := run.temp(ExtSnapshot)
	if _, err := s.storage.SaveStream(name, snap.Content); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			run.temps = append(run.temps, name)
		}
		return appErrors.Internal(err, "failed to write snapshot")
	}
	run.temps = append(run.temps, name)
	run.state = StateSnapshotTaken
	return nil
}

func (s *PublisherService) writeMetadata(ctx context.Context, run *publishRun) error {
	doc, err := s.metadata.BuildMetadata(ctx, run.export, run.at)
	if err != nil {
		return err
	}
	data, err := s.metadata.Encode(doc)
	if err != nil {
		return err
	}
	name := run.temp(ExtMetadata)
	if _, err := s.storage.SaveStream(name, bytes.NewReader(data)); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			run.temps = append(run.temps, name)
		}
		return appErrors.Internal(err, "failed to write metadata")
	}
	run.temps = append(run.temps, name)
	run.state = StateMetadataWritten
	return nil
}

func (s *PublisherService) sign(ctx context.Context, run *publishRun) error {
	name := run.temp(ExtTimestamp)
	err := s.notary.Stamp(ctx, s.storage.Path(run.temp(ExtSnapshot)), s.storage.Path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			run.temps = append(run.temps, name)
		}
		return appErrors.CloneWrap(appErrors.ErrSigning, err)
	}
	run.temps = append(run.temps, name)
	run.signed = true
	run.state = StateSigned
	return nil
}

func (s *PublisherService) commit(run *publishRun) error {
	if err := s.storage.EnsureDir(run.courseDir); err != nil {
		return appErrors.CloneWrap(appErrors.ErrDirectoryCreate, err)
	}

	exts := []string{ExtSnapshot, ExtMetadata}
	if run.signed {
		exts = []string{ExtTimestamp, ExtSnapshot, ExtMetadata}
	}
	for _, ext := range exts {
		dst := run.final(ext)
		if err := s.storage.Publish(run.temp(ext), dst); err != nil {
			if errors.Is(err, storage.ErrExists) {
				return appErrors.CloneWrap(appErrors.ErrBundleExists, err)
			}
			run.committed = append(run.committed, dst)
			return appErrors.CloneWrap(appErrors.ErrRename, err)
		}
		run.committed = append(run.committed, dst)
	}
	run.state = StateCommitted
	return nil
}

func (s *PublisherService) record(ctx context.Context, run *publishRun) error {
	record := &models.ArchiveHistoryRecord{
		CourseID:   run.export.Course.ID,
		ActivityID: run.export.Activity.ID,
		Reason:     run.export.Reason,
		CreatedAt:  run.at,
	}
	if err := s.history.Create(ctx, record); err != nil {
		return appErrors.Internal(err, "failed to record archive history")
	}
	run.state = StateRecorded
	return nil
}

// rollback removes the temp files and final files created by run. Removal errors are ignored.
func (s *PublisherService) rollback(run *publishRun) {
	for _, name := range run.temps {
		_ = s.storage.Delete(name)
	}
	for _, name := range run.committed {
		_ = s.storage.Delete(name)
	}
	s.logger.Debug("archive run rolled back",
		zap.String("stem", run.stem),
		zap.String("from_state", string(run.state)),
		zap.Int("temps", len(run.temps)),
		zap.Int("committed", len(run.committed)),
	)
	run.state = StateRolledBack
}

func (s *PublisherService) runPreHooks(ctx context.Context, export *ArchiveExport) {
	for i, hook := range s.preHooks {
		s.safeHook("pre", i, func() error { return hook(ctx, export) })
	}
}

func (s *PublisherService) runPostHooks(ctx context.Context, export *ArchiveExport, success bool) {
	for i, hook := range s.postHooks {
		s.safeHook("post", i, func() error { return hook(ctx, export, success) })
	}
}

func (s *PublisherService) safeHook(kind string, idx int, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("archive hook panicked",
				zap.String("hook", kind),
				zap.Int("index", idx),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("archive hook failed", zap.String("hook", kind), zap.Int("index", idx), zap.Error(err))
	}
}
