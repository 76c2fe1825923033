package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/storage"
)

func newBundleFixture(t *testing.T) (*BundleService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	files := map[string]string{
		"3/17-1-2026-03-14T09:26:53Z.mbz":  "backup",
		"3/17-1-2026-03-14T09:26:53Z.json": "{}",
		"3/17-1-2026-03-14T09:26:53Z.tsr":  "token",
		"3/17-2-2026-03-20T10:00:00Z.mbz":  "backup",
		"3/17-2-2026-03-20T10:00:00Z.json": "{}",
		"3/18-1-2026-03-21T10:00:00Z.mbz":  "incomplete",
		"3/.18-1-2026-03-22T10:00:00Z.mbz": "temp",
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	signer := storage.NewSignedURLSigner("download-secret", time.Minute)
	return NewBundleService(store, signer, "/api/v1/", nil), dir
}

func TestParseBundleStem(t *testing.T) {
	activity, reason, at, err := ParseBundleStem("17-4-2026-03-14T09:26:53+01:00")
	require.NoError(t, err)
	require.Equal(t, int64(17), activity)
	require.Equal(t, models.ReasonAdminScript, reason)
	require.Equal(t, int64(1773476813), at.Unix())

	_, _, _, err = ParseBundleStem("notes")
	require.Error(t, err)
}

func TestListCourseBundles(t *testing.T) {
	svc, _ := newBundleFixture(t)

	bundles, err := svc.ListCourseBundles(context.Background(), 3, nil)
	require.NoError(t, err)
	require.Len(t, bundles, 2)

	latest := bundles[0]
	require.Equal(t, "17-2-2026-03-20T10:00:00Z", latest.Stem)
	require.Equal(t, models.ReasonAttemptGraded, latest.Reason)
	require.False(t, latest.Signed)

	signed := bundles[1]
	require.True(t, signed.Signed)
	require.Len(t, signed.Files, 3)
	require.Len(t, signed.DownloadURLs, 3)
	require.True(t, strings.HasPrefix(signed.DownloadURLs["tsr"], "/api/v1/bundles/download?token="))

	none, err := svc.ListCourseBundles(context.Background(), 3, ptrInt64(99))
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestDownloadBundleFile(t *testing.T) {
	svc, _ := newBundleFixture(t)
	bundles, err := svc.ListCourseBundles(context.Background(), 3, ptrInt64(17))
	require.NoError(t, err)

	link, err := url.Parse(bundles[1].DownloadURLs["json"])
	require.NoError(t, err)
	download, err := svc.Download(context.Background(), link.Query().Get("token"))
	require.NoError(t, err)
	defer download.File.Close()

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	require.Equal(t, "{}", string(content))
	require.Equal(t, "application/json", download.MimeType)
	require.Equal(t, "17-1-2026-03-14T09:26:53Z.json", download.Filename)
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	svc, _ := newBundleFixture(t)
	signer := storage.NewSignedURLSigner("download-secret", time.Minute)

	forged, _, err := signer.Generate("17-1-2026-03-14T09:26:53Z", "3/18-1-2026-03-21T10:00:00Z.mbz")
	require.NoError(t, err)
	_, err = svc.Download(context.Background(), forged)
	require.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Download(context.Background(), "garbage")
	require.True(t, errors.Is(err, appErrors.ErrForbidden))

	missing, _, err := signer.Generate("19-1-2026-03-14T09:26:53Z", "3/19-1-2026-03-14T09:26:53Z.mbz")
	require.NoError(t, err)
	_, err = svc.Download(context.Background(), missing)
	require.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBundlesWithoutArchiveDirectory(t *testing.T) {
	svc := NewBundleService(nil, nil, "", nil)
	_, err := svc.ListCourseBundles(context.Background(), 1, nil)
	require.True(t, errors.Is(err, appErrors.ErrArchiveDirectoryNotSet))
}

func ptrInt64(v int64) *int64 {
	return &v
}
