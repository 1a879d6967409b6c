package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
)

type memMarker struct {
	at      time.Time
	ok      bool
	written []time.Time
}

func (m *memMarker) Read() (time.Time, bool, error) { return m.at, m.ok, nil }

func (m *memMarker) Write(t time.Time) error {
	m.written = append(m.written, t)
	return nil
}

type immediateDriver struct {
	trigger time.Time
	stopped bool
}

func (d *immediateDriver) Start(_ context.Context, job func(time.Time)) error {
	job(d.trigger)
	return nil
}

func (d *immediateDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func hackerNewsPipeline(filter keepAll) *Pipeline {
	return NewPipeline(PipelineDeps{
		Source:          &fakeSource{metadata: map[string][]domain.ItemMetadata{"hackernews": items(domain.SourceHackerNews, "Show HN")}},
		Filter:          filter,
		MetadataTargets: []scanner.Target{hackerNews},
	})
}

func TestDigestJobResumesFromMarker(t *testing.T) {
	t.Parallel()

	last := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	now := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	marker := &memMarker{at: last, ok: true}
	dir := t.TempDir()

	job := NewDigestJob(hackerNewsPipeline(keepAll{}), marker, dir, nil)
	job.now = func() time.Time { return now }

	output, err := job.Execute(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "news_digest_2024-05-01-06_2024-05-02-06.md"), output)
	assert.FileExists(t, output)
	assert.Equal(t, []time.Time{now}, marker.written)
}

func TestDigestJobDefaultsToOneDayAndHonoursExplicitBounds(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	job := NewDigestJob(hackerNewsPipeline(keepAll{}), &memMarker{}, t.TempDir(), nil)
	job.now = func() time.Time { return now }

	w, err := job.window(RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), w.Since)
	assert.Equal(t, now, w.Until)

	since := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	w, err = job.window(RunOptions{Since: since})
	require.NoError(t, err)
	assert.Equal(t, since, w.Since)

	_, err = job.window(RunOptions{Since: now.Add(time.Hour)})
	require.Error(t, err)
}

func TestDigestJobKeepsMarkerOnFailure(t *testing.T) {
	t.Parallel()

	marker := &memMarker{}
	job := NewDigestJob(hackerNewsPipeline(keepAll{fatalFor: domain.SourceHackerNews}), marker, t.TempDir(), nil)

	out := filepath.Join(t.TempDir(), "explicit.md")
	_, err := job.Execute(context.Background(), RunOptions{OutputFile: out})
	require.Error(t, err)
	assert.True(t, resilience.IsFatal(err))
	assert.Empty(t, marker.written)
}

func TestSchedulerRunsJobOnTrigger(t *testing.T) {
	t.Parallel()

	trigger := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	marker := &memMarker{}
	dir := t.TempDir()
	driver := &immediateDriver{trigger: trigger}

	s := NewScheduler(driver, NewDigestJob(hackerNewsPipeline(keepAll{}), marker, dir, nil), nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.True(t, driver.stopped)
	assert.Equal(t, []time.Time{trigger}, marker.written)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "news_digest_2024-05-01-06_2024-05-02-06.md", entries[0].Name())
}

func TestSchedulerWithoutDriverIsNoop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
