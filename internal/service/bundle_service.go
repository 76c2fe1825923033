package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/dto"
	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/storage"
)

type bundleFileStorage interface {
	List(dir string) ([]storage.FileInfo, error)
	Open(filename string) (*os.File, error)
}

type bundleURLSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// BundleDownload bundles file reader metadata for streaming.
type BundleDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// BundleService lists published bundles and serves their files through signed links.
type BundleService struct {
	storage   bundleFileStorage
	signer    bundleURLSigner
	apiPrefix string
	logger    *zap.Logger
}

// NewBundleService constructs the service. A nil storage means no archive directory is configured.
func NewBundleService(storage bundleFileStorage, signer bundleURLSigner, apiPrefix string, logger *zap.Logger) *BundleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if apiPrefix == "" {
		apiPrefix = "/api/v1"
	}
	return &BundleService{storage: storage, signer: signer, apiPrefix: strings.TrimRight(apiPrefix, "/"), logger: logger}
}

// ParseBundleStem splits "{activity}-{reason}-{timestamp}" into its parts.
func ParseBundleStem(stem string) (int64, models.ArchiveReason, time.Time, error) {
	parts := strings.SplitN(stem, "-", 3)
	if len(parts) != 3 {
		return 0, 0, time.Time{}, fmt.Errorf("malformed bundle stem %q", stem)
	}
	activityID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed activity in stem %q: %w", stem, err)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed reason in stem %q: %w", stem, err)
	}
	at, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("malformed timestamp in stem %q: %w", stem, err)
	}
	return activityID, models.ArchiveReason(code), at, nil
}

// ListCourseBundles returns the complete bundles of a course, newest first, with signed links.
func (s *BundleService) ListCourseBundles(ctx context.Context, courseID int64, activityID *int64) ([]dto.BundleResponse, error) {
	if s.storage == nil {
		return nil, appErrors.ErrArchiveDirectoryNotSet
	}
	dir := strconv.FormatInt(courseID, 10)
	files, err := s.storage.List(dir)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list course bundles")
	}

	byStem := make(map[string][]string)
	for _, f := range files {
		if strings.HasPrefix(f.Name, ".") {
			continue
		}
		ext := filepath.Ext(f.Name)
		if ext != ExtSnapshot && ext != ExtMetadata && ext != ExtTimestamp {
			continue
		}
		stem := strings.TrimSuffix(f.Name, ext)
		byStem[stem] = append(byStem[stem], ext)
	}

	bundles := make([]dto.BundleResponse, 0, len(byStem))
	for stem, exts := range byStem {
		if !containsString(exts, ExtMetadata) {
			continue
		}
		cmid, reason, at, err := ParseBundleStem(stem)
		if err != nil {
			s.logger.Debug("skipping unrecognised bundle", zap.String("stem", stem), zap.Error(err))
			continue
		}
		if activityID != nil && cmid != *activityID {
			continue
		}
		sort.Strings(exts)
		resp := dto.BundleResponse{
			ArchiveBundle: models.ArchiveBundle{
				CourseID:   courseID,
				ActivityID: cmid,
				Reason:     reason,
				Stem:       stem,
				Signed:     containsString(exts, ExtTimestamp),
				CreatedAt:  at,
			},
			DownloadURLs: make(map[string]string, len(exts)),
		}
		for _, ext := range exts {
			rel := path.Join(dir, stem+ext)
			resp.Files = append(resp.Files, rel)
			if s.signer == nil {
				continue
			}
			token, expiresAt, err := s.signer.Generate(stem, rel)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to generate download token")
			}
			resp.DownloadURLs[strings.TrimPrefix(ext, ".")] = fmt.Sprintf("%s/bundles/download?token=%s", s.apiPrefix, url.QueryEscape(token))
			resp.ExpiresAt = expiresAt
		}
		bundles = append(bundles, resp)
	}

	sort.Slice(bundles, func(i, j int) bool {
		if !bundles[i].CreatedAt.Equal(bundles[j].CreatedAt) {
			return bundles[i].CreatedAt.After(bundles[j].CreatedAt)
		}
		return bundles[i].Stem < bundles[j].Stem
	})
	return bundles, nil
}

// Download validates token and opens the bundle file it references.
func (s *BundleService) Download(ctx context.Context, token string) (*BundleDownload, error) {
	if s.storage == nil {
		return nil, appErrors.ErrArchiveDirectoryNotSet
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	stem, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	name := path.Base(relPath)
	ext := path.Ext(name)
	if strings.TrimSuffix(name, ext) != stem {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to open bundle file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Internal(err, "failed to read bundle file")
	}
	return &BundleDownload{
		File:      file,
		Filename:  name,
		MimeType:  bundleMimeType(ext),
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

func bundleMimeType(ext string) string {
	switch ext {
	case ExtMetadata:
		return "application/json"
	case ExtTimestamp:
		return "application/timestamp-reply"
	default:
		return "application/octet-stream"
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
