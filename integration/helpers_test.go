//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/era"
	erahttp "github.com/meigma/era/http"
	"github.com/meigma/era/internal/testutil"
)

const (
	network       = "mainnet"
	mirrorFiles   = 4
	blocksPerFile = 16
)

const nginxConf = `server {
    listen 80;
    location / {
        root /usr/share/nginx/html;
        autoindex on;
    }
}
`

// --- Mirror Container Setup ---

var (
	mirrorOnce     sync.Once
	mirrorBase     string
	mirrorArchives []testutil.ArchiveFile
	mirrorErr      error
)

// getMirror returns the base URL of the shared mirror and the files it
// serves, starting the container if needed.
func getMirror(tb testing.TB) (string, []testutil.ArchiveFile) {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	mirrorOnce.Do(func() {
		mirrorArchives = testutil.NewArchives(tb, network, mirrorFiles, blocksPerFile)
		mirrorBase, mirrorErr = startMirrorContainer(context.Background(), mirrorArchives)
	})

	if mirrorErr != nil {
		tb.Fatalf("start mirror container: %v", mirrorErr)
	}

	return mirrorBase, mirrorArchives
}

// startMirrorContainer starts nginx serving files and their checksum
// manifest under /era1/ and returns the mirror base URL.
func startMirrorContainer(ctx context.Context, files []testutil.ArchiveFile) (string, error) {
	staging, err := os.MkdirTemp("", "era1-mirror-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	const root = "/usr/share/nginx/html/era1/"
	var containerFiles []testcontainers.ContainerFile
	stage := func(name string, data []byte) error {
		p := filepath.Join(staging, name)
		if err := os.WriteFile(p, data, 0o644); err != nil { //nolint:gosec // served publicly
			return err
		}
		containerFiles = append(containerFiles, testcontainers.ContainerFile{
			HostFilePath:      p,
			ContainerFilePath: root + name,
			FileMode:          0o644,
		})
		return nil
	}
	for _, f := range files {
		if err := stage(f.Name, f.Data); err != nil {
			return "", fmt.Errorf("stage %s: %w", f.Name, err)
		}
	}
	if err := stage("checksums.txt", testutil.Manifest(files)); err != nil {
		return "", fmt.Errorf("stage manifest: %w", err)
	}
	if err := stage("default.conf", []byte(nginxConf)); err != nil {
		return "", fmt.Errorf("stage nginx config: %w", err)
	}
	containerFiles[len(containerFiles)-1].ContainerFilePath = "/etc/nginx/conf.d/default.conf"

	req := testcontainers.ContainerRequest{
		Image:        "nginx:1.27-alpine",
		ExposedPorts: []string{"80/tcp"},
		Files:        containerFiles,
		WaitingFor:   wait.ForHTTP("/era1/").WithPort("80/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start nginx container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve mirror host: %w", err)
	}

	port, err := container.MappedPort(ctx, "80/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve mirror port: %w", err)
	}

	return fmt.Sprintf("http://%s:%s/era1/", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status == http.StatusOK
}

// --- Client Helpers ---

// countingGetter wraps the real HTTP client and counts requests per URL.
type countingGetter struct {
	next  erahttp.Getter
	mu    sync.Mutex
	urls  map[string]int
	bytes atomic.Int64
}

func newCountingGetter() *countingGetter {
	return &countingGetter{next: erahttp.New(), urls: make(map[string]int)}
}

func (g *countingGetter) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	g.mu.Lock()
	g.urls[url]++
	g.mu.Unlock()
	rc, err := g.next.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return &countingBody{ReadCloser: rc, n: &g.bytes}, nil
}

func (g *countingGetter) count(url string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.urls[url]
}

type countingBody struct {
	io.ReadCloser
	n *atomic.Int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n.Add(int64(n))
	return n, err
}

// newTestClient creates a client downloading into a fresh directory.
func newTestClient(t *testing.T, getter erahttp.Getter, mirrors []string, opts ...era.Option) (*era.Client, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]era.Option{
		era.WithDir(dir),
		era.WithMirrors(network, mirrors...),
		era.WithGetter(getter),
		era.WithRetries(0),
	}, opts...)
	c, err := era.NewClient(opts...)
	require.NoError(t, err)
	return c, dir
}

// collect drains a download sequence.
func collect(t *testing.T, c *era.Client) ([]era.File, error) {
	t.Helper()
	var files []era.File
	for f, err := range c.Download(context.Background(), network) {
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	return files, nil
}
