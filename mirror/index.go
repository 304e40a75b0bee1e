package mirror

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Kind distinguishes consensus-layer era files from execution-layer era1
// files.
type Kind string

const (
	KindEra  Kind = "era"
	KindEra1 Kind = "era1"
)

var filenameRE = regexp.MustCompile(`^([a-z0-9]+)-(\d{5})-([0-9a-f]{8})\.(era1|era)$`)

// Filename is a parsed archive file name of the form
// <network>-<sequence>-<short-hash>.<kind>.
type Filename struct {
	Network string
	Number  int
	Hash    string
	Kind    Kind
}

// ParseFilename parses an archive file name. It reports false for names that
// do not follow the convention.
func ParseFilename(name string) (Filename, bool) {
	m := filenameRE.FindStringSubmatch(name)
	if m == nil {
		return Filename{}, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Filename{}, false
	}
	return Filename{Network: m[1], Number: n, Hash: m[3], Kind: Kind(m[4])}, true
}

func (f Filename) String() string {
	return fmt.Sprintf("%s-%05d-%s.%s", f.Network, f.Number, f.Hash, f.Kind)
}

// Entry is one archive file discovered at a mirror.
type Entry struct {
	Filename
	Name string
	URL  string
}

// ParseListing extracts archive files from an HTML directory listing. Links
// are resolved against base. Links that do not name an archive file are
// ignored, and a file linked more than once is reported once.
func ParseListing(r io.Reader, base *url.URL) ([]Entry, error) {
	var (
		z       = html.NewTokenizer(r)
		seen    = make(map[string]struct{})
		entries []Entry
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			return entries, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tag, hasAttr := z.TagName()
			if string(tag) != "a" || !hasAttr {
				continue
			}
			href := anchorHref(z)
			if href == "" {
				continue
			}
			u, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				continue
			}
			name := path.Base(u.Path)
			f, ok := ParseFilename(name)
			if !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			entries = append(entries, Entry{
				Filename: f,
				Name:     name,
				URL:      base.ResolveReference(u).String(),
			})
		}
	}
}

func anchorHref(z *html.Tokenizer) string {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return string(val)
		}
		if !more {
			return ""
		}
	}
}

// Catalog is the ordered set of archive files of one network and kind.
// Sequence numbers are contiguous from zero.
type Catalog struct {
	entries []Entry
	byName  map[string]int
}

// NewCatalog selects the entries matching network and kind, orders them by
// sequence number and checks that numbering starts at zero without gaps.
func NewCatalog(entries []Entry, network string, kind Kind) (*Catalog, error) {
	var selected []Entry
	for _, e := range entries {
		if e.Network == network && e.Kind == kind {
			selected = append(selected, e)
		}
	}
	slices.SortFunc(selected, func(a, b Entry) int {
		return a.Number - b.Number
	})

	c := &Catalog{entries: selected, byName: make(map[string]int, len(selected))}
	for i, e := range selected {
		if e.Number != i {
			if i > 0 && e.Number == selected[i-1].Number {
				return nil, fmt.Errorf("%w: %s and %s share sequence number %d",
					ErrParse, selected[i-1].Name, e.Name, e.Number)
			}
			return nil, fmt.Errorf("%w: expected %s file %05d, found %s", ErrSequenceGap, network, i, e.Name)
		}
		c.byName[e.Name] = i
	}
	return c, nil
}

// Len returns the number of files in the catalog.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the catalog in sequence order.
func (c *Catalog) Entries() []Entry {
	return slices.Clone(c.entries)
}

// All iterates the catalog in sequence order.
func (c *Catalog) All() iter.Seq[Entry] {
	return slices.Values(c.entries)
}

// At returns the entry with sequence number n.
func (c *Catalog) At(n int) (Entry, bool) {
	if n < 0 || n >= len(c.entries) {
		return Entry{}, false
	}
	return c.entries[n], true
}

// ByName returns the entry for the file name.
func (c *Catalog) ByName(name string) (Entry, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}
