package mirror

import (
	"bufio"
	_ "crypto/sha256" // registers the digest algorithm
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Checksums maps archive file names to their SHA-256 content digests.
//
// Two manifest layouts are understood. The coreutils layout carries one
// "<hex-digest>  <file-name>" line per file. The positional layout carries
// one bare digest per line, where line i describes the file with sequence
// number i. Mixing the two layouts in one manifest is an error.
type Checksums struct {
	byName     map[string]digest.Digest
	positional []digest.Digest
}

// ParseChecksums parses a checksum manifest. Any malformed line fails the
// whole manifest.
func ParseChecksums(r io.Reader) (*Checksums, error) {
	c := &Checksums{byName: make(map[string]digest.Digest)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		hexPart, name, named := strings.Cut(line, " ")
		d, err := parseDigest(hexPart)
		if err != nil {
			return nil, fmt.Errorf("%w: checksums line %d: %w", ErrParse, lineNo, err)
		}
		if named {
			// coreutils marks binary mode with a leading '*'.
			name = strings.TrimPrefix(strings.TrimLeft(name, " "), "*")
			if name == "" || strings.ContainsAny(name, " \t/") {
				return nil, fmt.Errorf("%w: checksums line %d: invalid file name %q", ErrParse, lineNo, name)
			}
		}

		switch {
		case named && len(c.positional) > 0, !named && len(c.byName) > 0:
			return nil, fmt.Errorf("%w: checksums line %d: mixed named and positional lines", ErrParse, lineNo)
		case named:
			if _, dup := c.byName[name]; dup {
				return nil, fmt.Errorf("%w: checksums line %d: duplicate entry for %s", ErrParse, lineNo, name)
			}
			c.byName[name] = d
		default:
			c.positional = append(c.positional, d)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDigest(s string) (digest.Digest, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	d := digest.NewDigestFromEncoded(digest.SHA256, s)
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return d, nil
}

// Len returns the number of files described by the manifest.
func (c *Checksums) Len() int {
	return len(c.byName) + len(c.positional)
}

// Lookup returns the digest recorded for name. A file missing from the
// manifest yields ErrUnknownFile and must not be downloaded.
func (c *Checksums) Lookup(name string) (digest.Digest, error) {
	if d, ok := c.byName[name]; ok {
		return d, nil
	}
	if len(c.positional) > 0 {
		if f, ok := ParseFilename(name); ok && f.Number < len(c.positional) {
			return c.positional[f.Number], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFile, name)
}

// String renders the manifest in the coreutils layout when it is named.
func (c *Checksums) String() string {
	var b strings.Builder
	for _, d := range c.positional {
		fmt.Fprintf(&b, "%s\n", d.Encoded())
	}
	for _, name := range slices.Sorted(maps.Keys(c.byName)) {
		fmt.Fprintf(&b, "%s  %s\n", c.byName[name].Encoded(), name)
	}
	return b.String()
}
