// Package local implements storage.Storage against the local
// filesystem: job artifacts are copied into a per-service root and
// served back through a confined path join, grounded on the access
// confinement pattern called for in spec §4.4.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/romanqed/qjazz/job"
)

// Storage persists artifacts under Root/{jobID}/.
type Storage struct {
	Root string
	// PublicBase, when set, is prefixed to generated download links
	// (e.g. "https://gateway.example/jobs").
	PublicBase string
}

// New creates a Storage rooted at root. root is created if missing.
func New(root, publicBase string) (*Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Storage{Root: root, PublicBase: publicBase}, nil
}

// BeforeCreateProcess implements storage.Storage; the local
// implementation holds no shared file handles so there is nothing to
// reset.
func (s *Storage) BeforeCreateProcess() {}

func (s *Storage) jobDir(jobID string) string {
	return filepath.Join(s.Root, jobID)
}

// confine resolves name under base and rejects any path escaping it.
func confine(base, name string) (string, error) {
	full := filepath.Join(base, name)
	rel, err := filepath.Rel(base, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("storage: path %q escapes root", name)
	}
	return full, nil
}

// Move implements storage.Storage.
func (s *Storage) Move(_ context.Context, jobID string, files []string, workDir string) error {
	dest := s.jobDir(jobID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, name := range files {
		src, err := confine(workDir, name)
		if err != nil {
			return err
		}
		dst, err := confine(dest, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// DownloadURL implements storage.Storage.
func (s *Storage) DownloadURL(_ context.Context, jobID, resource, _ string, expires time.Duration) (job.Link, error) {
	path, err := confine(s.jobDir(jobID), resource)
	if err != nil {
		return job.Link{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return job.Link{}, err
	}
	href := fmt.Sprintf("file://%s", path)
	if s.PublicBase != "" {
		href = fmt.Sprintf("%s/%s/files/%s", strings.TrimSuffix(s.PublicBase, "/"), jobID, resource)
	}
	return job.Link{
		Href:   href,
		Rel:    "result",
		Length: info.Size(),
	}, nil
}

// Remove implements storage.Storage.
func (s *Storage) Remove(_ context.Context, jobID, _ string) error {
	return os.RemoveAll(s.jobDir(jobID))
}
