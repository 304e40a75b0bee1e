package download_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/era/download"
	"github.com/meigma/era/era1"
	"github.com/meigma/era/fetch"
	erahttp "github.com/meigma/era/http"
	"github.com/meigma/era/internal/testutil"
)

const (
	mirrorA = "https://a.example.org/"
	mirrorB = "https://b.example.org/"
	mirrorC = "https://c.example.org/"
	mirrorD = "https://d.example.org/"
)

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func newDownloader(t *testing.T, dir string, getter *testutil.StubGetter, mirrors []string, opts ...download.Option) *download.Downloader {
	t.Helper()
	opts = append([]download.Option{
		download.WithGetter(getter),
		download.WithBackOff(noWait),
	}, opts...)
	d, err := download.New(dir, mirrors, opts...)
	require.NoError(t, err)
	return d
}

func merge(ms ...map[string]testutil.Response) map[string]testutil.Response {
	out := make(map[string]testutil.Response)
	for _, m := range ms {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func collect(t *testing.T, seq func(func(fetch.File, error) bool)) ([]fetch.File, []error) {
	t.Helper()
	var (
		files []fetch.File
		errs  []error
	)
	for f, err := range seq {
		files = append(files, f)
		errs = append(errs, err)
	}
	return files, errs
}

func requireNoParts(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.part"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFilesEndToEnd(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 2, 4)
	getter := testutil.NewStubGetter(testutil.MirrorResponses(mirrorA, archives))
	dir := t.TempDir()

	d := newDownloader(t, dir, getter, []string{mirrorA})
	files, errs := collect(t, d.Files(context.Background(), "mainnet"))
	require.Len(t, files, 2)

	for i, f := range files {
		require.NoError(t, errs[i])
		assert.Equal(t, filepath.Join(dir, archives[i].Name), f.Path)
		assert.Equal(t, archives[i].Digest, f.Digest)
		assert.EqualValues(t, len(archives[i].Data), f.Size)

		fh, err := os.Open(f.Path)
		require.NoError(t, err)
		r := era1.NewReader(fh)
		for j, want := range archives[i].Chain.Blocks {
			tuple, err := r.Next()
			require.NoError(t, err)
			block, err := tuple.Block()
			require.NoError(t, err)
			assert.Equal(t, want.Hash(), block.Hash(), "file %d block %d", i, j)
			assert.Zero(t, archives[i].Chain.TDs[j].Cmp(tuple.TotalDifficulty.Big()))
		}
		_, err = r.Next()
		require.ErrorIs(t, err, io.EOF)
		require.NoError(t, fh.Close())
	}
	requireNoParts(t, dir)
}

func TestFilesMirrorFallback(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 1, 2)
	name := archives[0].Name

	a := testutil.MirrorResponses(mirrorA, archives)
	a[mirrorA+name] = testutil.Response{Body: []byte("corrupt")}
	b := testutil.MirrorResponses(mirrorB, archives)
	b[mirrorB+name] = testutil.Response{Body: archives[0].Data, FailAfter: 100}
	getter := testutil.NewStubGetter(merge(a, b,
		testutil.MirrorResponses(mirrorC, archives),
		testutil.MirrorResponses(mirrorD, archives)))

	var (
		mu          sync.Mutex
		transitions []download.Transition
	)
	dir := t.TempDir()
	d := newDownloader(t, dir, getter, []string{mirrorA, mirrorB, mirrorC, mirrorD},
		download.WithRetries(1),
		download.WithObserver(func(tr download.Transition) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, tr)
		}))

	files, errs := collect(t, d.Files(context.Background(), "mainnet"))
	require.Len(t, files, 1)
	require.NoError(t, errs[0])
	assert.Equal(t, archives[0].Digest, files[0].Digest)

	assert.Equal(t, 1, getter.Count(mirrorA+name), "digest mismatch is not retried")
	assert.Equal(t, 2, getter.Count(mirrorB+name), "network failure is retried once")
	assert.Equal(t, 1, getter.Count(mirrorC+name))
	assert.Zero(t, getter.Count(mirrorD+name))
	assert.Zero(t, getter.Count(mirrorD))
	assert.Zero(t, getter.Count(mirrorD+"checksums.txt"))

	assert.Equal(t, []download.Transition{
		{File: name, State: download.StatePending, Mirror: -1},
		{File: name, State: download.StateVerifying, Mirror: 0},
		{File: name, State: download.StateVerifying, Mirror: 1},
		{File: name, State: download.StateVerifying, Mirror: 2},
		{File: name, State: download.StateDone, Mirror: 2},
	}, transitions)
	requireNoParts(t, dir)
}

func TestFilesIdempotentRerun(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 2, 2)
	responses := testutil.MirrorResponses(mirrorA, archives)
	dir := t.TempDir()

	first := testutil.NewStubGetter(responses)
	_, errs := collect(t, newDownloader(t, dir, first, []string{mirrorA}).Files(context.Background(), "mainnet"))
	require.Equal(t, []error{nil, nil}, errs)

	second := testutil.NewStubGetter(responses)
	var cached int
	d := newDownloader(t, dir, second, []string{mirrorA}, download.WithObserver(func(tr download.Transition) {
		if tr.State == download.StateDone && tr.Cached {
			cached++
		}
	}), download.WithConcurrency(1))
	files, errs := collect(t, d.Files(context.Background(), "mainnet"))
	require.Equal(t, []error{nil, nil}, errs)
	require.Len(t, files, 2)
	assert.Equal(t, 2, cached)
	for _, a := range archives {
		assert.Zero(t, second.Count(mirrorA+a.Name))
	}
}

func TestFilesResumesMissing(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 3, 1)
	getter := testutil.NewStubGetter(testutil.MirrorResponses(mirrorA, archives))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, archives[0].Name), archives[0].Data, 0o600))
	// A corrupt local copy is replaced.
	require.NoError(t, os.WriteFile(filepath.Join(dir, archives[1].Name), []byte("junk"), 0o600))

	_, errs := collect(t, newDownloader(t, dir, getter, []string{mirrorA}).Files(context.Background(), "mainnet"))
	require.Equal(t, []error{nil, nil, nil}, errs)

	assert.Zero(t, getter.Count(mirrorA+archives[0].Name))
	assert.Equal(t, 1, getter.Count(mirrorA+archives[1].Name))
	assert.Equal(t, 1, getter.Count(mirrorA+archives[2].Name))

	got, err := os.ReadFile(filepath.Join(dir, archives[1].Name))
	require.NoError(t, err)
	assert.Equal(t, archives[1].Data, got)
}

func TestFilesAllMirrorsFail(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 2, 1)
	bad := archives[1].Name
	a := testutil.MirrorResponses(mirrorA, archives)
	a[mirrorA+bad] = testutil.Response{Body: []byte("corrupt")}
	b := testutil.MirrorResponses(mirrorB, archives)
	b[mirrorB+bad] = testutil.Response{Err: erahttp.ErrTimeout}
	getter := testutil.NewStubGetter(merge(a, b))

	dir := t.TempDir()
	files, errs := collect(t, newDownloader(t, dir, getter, []string{mirrorA, mirrorB}, download.WithRetries(2)).
		Files(context.Background(), "mainnet"))
	require.Len(t, files, 2)
	require.NoError(t, errs[0])

	err := errs[1]
	require.ErrorIs(t, err, download.ErrFailed)
	require.ErrorIs(t, err, fetch.ErrDigestMismatch)
	require.ErrorIs(t, err, erahttp.ErrTimeout)

	var failed *download.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, bad, failed.File)
	require.Len(t, failed.Attempts, 2)
	assert.Equal(t, mirrorA, failed.Attempts[0].Mirror)
	assert.Equal(t, mirrorB, failed.Attempts[1].Mirror)
	assert.Contains(t, err.Error(), bad)

	assert.Equal(t, 3, getter.Count(mirrorB+bad))
	_, statErr := os.Stat(filepath.Join(dir, bad))
	require.True(t, errors.Is(statErr, os.ErrNotExist))
	requireNoParts(t, dir)
}

func TestFilesUnknownFileFallsBack(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 2, 1)
	a := testutil.MirrorResponses(mirrorA, archives)
	// Mirror A lists both files but only vouches for the first one.
	a[mirrorA+"checksums.txt"] = testutil.Response{Body: testutil.Manifest(archives[:1])}
	getter := testutil.NewStubGetter(merge(a, testutil.MirrorResponses(mirrorB, archives)))

	_, errs := collect(t, newDownloader(t, t.TempDir(), getter, []string{mirrorA, mirrorB}).
		Files(context.Background(), "mainnet"))
	require.Equal(t, []error{nil, nil}, errs)
	assert.Zero(t, getter.Count(mirrorA+archives[1].Name), "unverifiable file is never downloaded")
	assert.Equal(t, 1, getter.Count(mirrorB+archives[1].Name))
}

func TestFilesDiscovery(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 2, 1)

	t.Run("fallback", func(t *testing.T) {
		t.Parallel()

		a := testutil.MirrorResponses(mirrorA, archives)
		a[mirrorA] = testutil.Response{Status: 503}
		getter := testutil.NewStubGetter(merge(a, testutil.MirrorResponses(mirrorB, archives)))

		_, errs := collect(t, newDownloader(t, t.TempDir(), getter, []string{mirrorA, mirrorB}, download.WithRetries(0)).
			Files(context.Background(), "mainnet"))
		require.Equal(t, []error{nil, nil}, errs)
		for _, f := range archives {
			assert.Zero(t, getter.Count(mirrorA+f.Name))
			assert.Equal(t, 1, getter.Count(mirrorB+f.Name))
		}
	})

	t.Run("gap", func(t *testing.T) {
		t.Parallel()

		three := testutil.NewArchives(t, "mainnet", 3, 1)
		a := testutil.MirrorResponses(mirrorA, three)
		a[mirrorA] = testutil.Response{Body: testutil.Listing([]testutil.ArchiveFile{three[0], three[2]})}
		getter := testutil.NewStubGetter(merge(a, testutil.MirrorResponses(mirrorB, three)))

		files, errs := collect(t, newDownloader(t, t.TempDir(), getter, []string{mirrorA, mirrorB}).
			Files(context.Background(), "mainnet"))
		require.Len(t, files, 3)
		require.Equal(t, []error{nil, nil, nil}, errs)
	})

	t.Run("exhausted", func(t *testing.T) {
		t.Parallel()

		getter := testutil.NewStubGetter(nil)
		_, errs := collect(t, newDownloader(t, t.TempDir(), getter, []string{mirrorA, mirrorB}).
			Files(context.Background(), "mainnet"))
		require.Len(t, errs, 1)
		require.ErrorIs(t, errs[0], download.ErrDiscovery)
		require.ErrorIs(t, errs[0], erahttp.ErrNetwork)
	})
}

func TestFilesLimit(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 3, 1)
	getter := testutil.NewStubGetter(testutil.MirrorResponses(mirrorA, archives))

	files, errs := collect(t, newDownloader(t, t.TempDir(), getter, []string{mirrorA}, download.WithLimit(2)).
		Files(context.Background(), "mainnet"))
	require.Len(t, files, 2)
	require.Equal(t, []error{nil, nil}, errs)
	assert.Zero(t, getter.Count(mirrorA+archives[2].Name))
}

func TestFilesEarlyStop(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 4, 1)
	responses := testutil.MirrorResponses(mirrorA, archives)
	for _, a := range archives[1:] {
		responses[mirrorA+a.Name] = testutil.Response{Body: a.Data, Block: true}
	}
	getter := testutil.NewStubGetter(responses)
	dir := t.TempDir()

	d := newDownloader(t, dir, getter, []string{mirrorA}, download.WithConcurrency(2))
	var got []fetch.File
	for f, err := range d.Files(context.Background(), "mainnet") {
		require.NoError(t, err)
		got = append(got, f)
		break
	}
	require.Len(t, got, 1)

	// Iteration has returned, so every fetch has been torn down.
	requireNoParts(t, dir)
	for _, a := range archives[1:] {
		_, err := os.Stat(filepath.Join(dir, a.Name))
		require.ErrorIs(t, err, os.ErrNotExist)
	}
	assert.Zero(t, getter.Count(mirrorA+archives[3].Name), "fetching never runs further ahead than the window")
}

func TestFilesCanceled(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 2, 1)
	responses := testutil.MirrorResponses(mirrorA, archives)
	responses[mirrorA+archives[1].Name] = testutil.Response{Body: archives[1].Data, Block: true}
	getter := testutil.NewStubGetter(responses)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var errs []error
	for _, err := range newDownloader(t, dir, getter, []string{mirrorA}).Files(ctx, "mainnet") {
		errs = append(errs, err)
		cancel()
	}
	require.Len(t, errs, 2)
	require.NoError(t, errs[0])
	require.ErrorIs(t, errs[1], context.Canceled)
	requireNoParts(t, dir)
}

func TestFilesNotRestartable(t *testing.T) {
	t.Parallel()

	archives := testutil.NewArchives(t, "mainnet", 1, 1)
	getter := testutil.NewStubGetter(testutil.MirrorResponses(mirrorA, archives))
	seq := newDownloader(t, t.TempDir(), getter, []string{mirrorA}).Files(context.Background(), "mainnet")

	_, errs := collect(t, seq)
	require.Equal(t, []error{nil}, errs)

	_, errs = collect(t, seq)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], download.ErrRestarted)
}

func TestNewWithoutMirrors(t *testing.T) {
	t.Parallel()

	_, err := download.New(t.TempDir(), nil)
	require.ErrorIs(t, err, download.ErrNoMirrors)
}
