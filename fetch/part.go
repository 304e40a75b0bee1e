package fetch

import (
	"os"
	"path/filepath"
)

// partFile is a temporary file next to its final path. It becomes visible
// under the final name only through Commit.
type partFile struct {
	file      *os.File
	tmpPath   string
	finalPath string
	done      bool
}

func createPart(finalPath string) (*partFile, error) {
	dir, base := filepath.Split(finalPath)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.part")
	if err != nil {
		return nil, err
	}
	return &partFile{
		file:      tmp,
		tmpPath:   tmp.Name(),
		finalPath: finalPath,
	}, nil
}

func (p *partFile) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

func (p *partFile) Commit() error {
	p.done = true
	if err := p.file.Sync(); err != nil {
		_ = p.file.Close()
		_ = os.Remove(p.tmpPath)
		return err
	}
	if err := p.file.Close(); err != nil {
		_ = os.Remove(p.tmpPath)
		return err
	}
	if err := os.Rename(p.tmpPath, p.finalPath); err != nil {
		_ = os.Remove(p.tmpPath)
		return err
	}
	return nil
}

// Discard closes and removes the temporary file. It is a no-op after Commit.
func (p *partFile) Discard() error {
	if p.done {
		return nil
	}
	p.done = true
	_ = p.file.Close()
	return os.Remove(p.tmpPath)
}
