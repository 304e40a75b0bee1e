package testutil

import (
	_ "crypto/sha256" // registers the digest algorithm
	"fmt"
	"html"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/era/era1"
)

// ArchiveFile is one generated era1 file.
type ArchiveFile struct {
	Name   string
	Data   []byte
	Digest digest.Digest
	Chain  *Chain
}

// NewArchives generates files era1 files of blocksPerFile blocks each for
// network, numbered from zero.
func NewArchives(tb testing.TB, network string, files, blocksPerFile int) []ArchiveFile {
	tb.Helper()

	out := make([]ArchiveFile, 0, files)
	for i := range files {
		chain := NewChain(uint64(i*blocksPerFile), blocksPerFile) //nolint:gosec // test sizes are small
		data, root := chain.Archive(tb)
		out = append(out, ArchiveFile{
			Name:   era1.Filename(network, i, root),
			Data:   data,
			Digest: digest.FromBytes(data),
			Chain:  chain,
		})
	}
	return out
}

// Listing renders an autoindex-style HTML page linking every file, plus a
// few unrelated links.
func Listing(files []ArchiveFile) []byte {
	var b strings.Builder
	b.WriteString("<html><head><title>Index of /</title></head><body>\n<h1>Index of /</h1><hr><pre>\n")
	b.WriteString(`<a href="../">../</a>` + "\n")
	for _, f := range files {
		name := html.EscapeString(f.Name)
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>   01-Jan-2024 00:00   %d\n", name, name, len(f.Data))
	}
	b.WriteString(`<a href="checksums.txt">checksums.txt</a>` + "\n")
	b.WriteString(`<a href="README.md">README.md</a>` + "\n")
	b.WriteString("</pre><hr></body></html>\n")
	return []byte(b.String())
}

// Manifest renders a coreutils-style checksum manifest for files.
func Manifest(files []ArchiveFile) []byte {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s  %s\n", f.Digest.Encoded(), f.Name)
	}
	return []byte(b.String())
}

// MirrorResponses returns the responses of a mirror at base (which must end
// in a slash) serving files.
func MirrorResponses(base string, files []ArchiveFile) map[string]Response {
	m := map[string]Response{
		base:                   {Body: Listing(files)},
		base + "checksums.txt": {Body: Manifest(files)},
	}
	for _, f := range files {
		m[base+f.Name] = Response{Body: f.Data}
	}
	return m
}
