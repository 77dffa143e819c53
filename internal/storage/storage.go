package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a clip does not exist in the store
var ErrNotFound = errors.New("object not found")

// Object describes a stored clip
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage interface for storing and retrieving encoded clips
type Storage interface {
	// Write stores data under name
	Write(ctx context.Context, name string, data []byte, contentType string) error

	// Read reads the whole object
	Read(ctx context.Context, name string) ([]byte, error)

	// ReadSeeker returns a ReadSeeker for the object (useful for http.ServeContent)
	ReadSeeker(ctx context.Context, name string) (io.ReadSeeker, error)

	// Delete deletes an object, deleting a missing object is not an error
	Delete(ctx context.Context, name string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, name string) (bool, error)

	// List lists stored objects whose name has the given extension, oldest first.
	// An empty ext lists everything.
	List(ctx context.Context, ext string) ([]Object, error)

	// Location returns a human readable location of name (path or URI)
	Location(name string) string
}

// URLSigner is implemented by stores that can hand out direct, time limited
// download URLs
type URLSigner interface {
	SignedURL(name string, expiration time.Duration) (string, error)
}

// LocalStorage implements Storage using local filesystem
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
	}, nil
}

// Write writes data to a file. The file is written under a temporary name
// and renamed so readers never see a partial clip.
func (s *LocalStorage) Write(ctx context.Context, name string, data []byte, contentType string) error {
	fullPath, err := s.fullPath(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := fullPath + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize file: %w", err)
	}

	return nil
}

// Read reads data from a file
func (s *LocalStorage) Read(ctx context.Context, name string) ([]byte, error) {
	fullPath, err := s.fullPath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

// ReadSeeker returns a ReadSeeker for the file. Callers should close it
// when it implements io.Closer.
func (s *LocalStorage) ReadSeeker(ctx context.Context, name string) (io.ReadSeeker, error) {
	fullPath, err := s.fullPath(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete deletes a file
func (s *LocalStorage) Delete(ctx context.Context, name string) error {
	fullPath, err := s.fullPath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	fullPath, err := s.fullPath(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// List lists the files of the base directory
func (s *LocalStorage) List(ctx context.Context, ext string) ([]Object, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !hasExt(entry.Name(), ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed while listing
		}
		objects = append(objects, Object{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sortObjects(objects)
	return objects, nil
}

// Location returns the filesystem path of name
func (s *LocalStorage) Location(name string) string {
	return filepath.Join(s.baseDir, name)
}

// BaseDir returns the directory clips are written to
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

func (s *LocalStorage) fullPath(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, name), nil
}

// ValidateName rejects names that would escape the store
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid object name %q", name)
	}
	return nil
}

// ContentType guesses the content type of a clip from its extension
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return "application/octet-stream"
}

func hasExt(name, ext string) bool {
	if ext == "" {
		return !strings.HasSuffix(name, ".part")
	}
	return strings.EqualFold(filepath.Ext(name), "."+strings.TrimPrefix(ext, "."))
}

// sortObjects orders objects oldest first, breaking ties by name. Clip names
// embed their start time so the name order is chronological as well.
func sortObjects(objects []Object) {
	sort.Slice(objects, func(i, j int) bool {
		if !objects[i].ModTime.Equal(objects[j].ModTime) {
			return objects[i].ModTime.Before(objects[j].ModTime)
		}
		return objects[i].Name < objects[j].Name
	})
}
