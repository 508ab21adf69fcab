package storage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Handle describes a stored object.
type Handle struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// Storage is the narrow file-storage contract consumed by the plugin runtime.
type Storage interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (Handle, error)
	Download(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]Handle, error)
}

// ErrInvalidName is returned for object names that escape their namespace.
var ErrInvalidName = fmt.Errorf("invalid object name")

// cleanName normalizes an object name and rejects anything that could
// address data outside the storage namespace.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	cleaned := path.Clean("/" + name)[1:]
	if cleaned == "" || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}

// Local is a filesystem-backed Storage rooted at a single directory.
type Local struct {
	root   string
	logger zerolog.Logger
}

// NewLocal creates a local storage backend rooted at dir.
func NewLocal(dir string, logger zerolog.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{
		root:   dir,
		logger: logger.With().Str("component", "storage").Logger(),
	}, nil
}

func (l *Local) Upload(ctx context.Context, name string, data []byte, contentType string) (Handle, error) {
	cleaned, err := cleanName(name)
	if err != nil {
		return Handle{}, err
	}

	full := filepath.Join(l.root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return Handle{}, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return Handle{}, fmt.Errorf("failed to write object: %w", err)
	}

	l.logger.Debug().Str("name", cleaned).Int("size", len(data)).Msg("Stored object")

	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(cleaned))
	}
	return Handle{
		Name:        cleaned,
		Size:        int64(len(data)),
		ContentType: contentType,
		ModifiedAt:  time.Now(),
	}, nil
}

func (l *Local) Download(ctx context.Context, name string) ([]byte, error) {
	cleaned, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(cleaned)))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", cleaned, err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, name string) error {
	cleaned, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.root, filepath.FromSlash(cleaned))); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", cleaned, err)
	}
	return nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]Handle, error) {
	cleanedPrefix := ""
	if prefix != "" {
		var err error
		cleanedPrefix, err = cleanName(prefix)
		if err != nil {
			return nil, err
		}
	}

	var handles []Handle
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if cleanedPrefix != "" && !strings.HasPrefix(name, cleanedPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		handles = append(handles, Handle{
			Name:        name,
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(path.Ext(name)),
			ModifiedAt:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(handles, func(i, j int) bool { return handles[i].Name < handles[j].Name })
	return handles, nil
}
