package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/hwidgate/pkg/slogx"
)

func accessRecord(hwid string) domain.AccessRecord {
	return domain.AccessRecord{
		Time:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		HWID:      domain.HWID(hwid),
		Addr:      "203.0.113.7",
		UserAgent: "Roblox/WinInet",
	}
}

func TestRecorderAppendsLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o600))

	m := metrics.New()
	rec := NewAccessRecorder(path, 8, slogx.Discard(), m)
	rec.Start()

	require.NoError(t, rec.Record(accessRecord("aaaa")))
	require.NoError(t, rec.Record(accessRecord("bbbb")))
	rec.Stop()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Equal(t, []string{
		"existing",
		"[2025-06-01 12:00:00] HWID: aaaa | IP: 203.0.113.7 | User-Agent: Roblox/WinInet",
		"[2025-06-01 12:00:00] HWID: bbbb | IP: 203.0.113.7 | User-Agent: Roblox/WinInet",
	}, lines)
	require.Equal(t, 2.0, testutil.ToFloat64(m.AccessRecords.WithLabelValues("written")))
}

func TestRecorderRejectsAfterStop(t *testing.T) {
	t.Parallel()

	rec := NewAccessRecorder(filepath.Join(t.TempDir(), "access.log"), 1, slogx.Discard(), nil)
	rec.Start()
	rec.Stop()
	rec.Stop()

	require.ErrorIs(t, rec.Record(accessRecord("aaaa")), ErrRecorderClosed)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	// Not started, so nothing drains the buffer.
	rec := NewAccessRecorder(filepath.Join(t.TempDir(), "access.log"), 1, slogx.Discard(), m)

	require.NoError(t, rec.Record(accessRecord("aaaa")))
	require.ErrorIs(t, rec.Record(accessRecord("bbbb")), ErrRecorderFull)
	require.Equal(t, 1.0, testutil.ToFloat64(m.AccessRecords.WithLabelValues("dropped")))
	rec.Stop()
}

func TestRecorderCountsWriteFailures(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	// A directory cannot be opened for appending.
	rec := NewAccessRecorder(t.TempDir(), 4, slogx.Discard(), m)
	rec.Start()

	require.NoError(t, rec.Record(accessRecord("aaaa")))
	rec.Stop()

	require.Equal(t, 1.0, testutil.ToFloat64(m.AccessRecords.WithLabelValues("failed")))
}

func TestRecorderFollowsRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")

	rec := NewAccessRecorder(path, 4, slogx.Discard(), nil)
	rec.Start()
	defer rec.Stop()

	require.NoError(t, rec.Record(accessRecord("before")))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "before")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Rename(path, filepath.Join(dir, "access.log.1")))
	require.NoError(t, rec.Record(accessRecord("after")))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "after") && !strings.Contains(string(data), "before")
	}, 2*time.Second, 10*time.Millisecond)
}
