package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// DiskFileStore stores artifacts on a filesystem. Production use backs it
// with the OS filesystem rooted at a configured directory; tests back it
// with an in-memory filesystem.
type DiskFileStore struct {
	fs     afero.Fs
	root   string // OS path of the store root; empty for in-memory stores
	config Config

	mu        sync.Mutex
	used      int64
	usedValid bool
}

var _ FileStore = (*DiskFileStore)(nil)

// NewDiskFileStore opens (creating if needed) a store rooted at the given
// directory.
func NewDiskFileStore(root string, config Config) (*DiskFileStore, error) {
	if root == "" {
		return nil, NewFileError("init", "", fmt.Errorf("store root is required"))
	}
	if config.MaxFileSize == 0 && config.MaxTotalBytes == 0 {
		config = DefaultConfig()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, NewFileError("init", root, err)
	}

	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(abs, 0o755); err != nil {
		return nil, NewFileError("init", root, err)
	}

	return &DiskFileStore{
		fs:     afero.NewBasePathFs(osFs, abs),
		root:   abs,
		config: config,
	}, nil
}

// NewMemFileStore returns a store backed by an in-memory filesystem.
func NewMemFileStore(config Config) *DiskFileStore {
	if config.MaxFileSize == 0 && config.MaxTotalBytes == 0 {
		config = DefaultConfig()
	}
	return &DiskFileStore{fs: afero.NewMemMapFs(), config: config}
}

// validateKey rejects keys that are empty, absolute, unclean, or would
// escape the store root.
func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return ErrInvalidKey
	}
	return nil
}

func fsPath(key string) string {
	return "/" + filepath.FromSlash(key)
}

func (s *DiskFileStore) Put(ctx context.Context, key string, reader io.Reader, opts PutOptions) (*FileInfo, error) {
	if s.fs == nil {
		return nil, ErrStoreNotInitialized
	}
	if err := validateKey(key); err != nil {
		return nil, NewFileError("put", key, err)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewFileError("put", key, fmt.Errorf("read input: %w", err))
	}

	if s.config.MaxFileSize > 0 && int64(len(data)) > s.config.MaxFileSize {
		return nil, NewFileError("put", key, ErrFileTooLarge)
	}

	if err := s.reserve(key, int64(len(data))); err != nil {
		return nil, NewFileError("put", key, err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	checksum := sha256.Sum256(data)

	name := fsPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, NewFileError("put", key, err)
	}
	if err := afero.WriteFile(s.fs, name, data, 0o644); err != nil {
		return nil, NewFileError("put", key, err)
	}

	return &FileInfo{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    hex.EncodeToString(checksum[:]),
		CreatedAt:   time.Now(),
	}, nil
}

func (s *DiskFileStore) Get(ctx context.Context, key string) (io.ReadCloser, *FileInfo, error) {
	if s.fs == nil {
		return nil, nil, ErrStoreNotInitialized
	}
	if err := validateKey(key); err != nil {
		return nil, nil, NewFileError("get", key, err)
	}

	f, err := s.fs.Open(fsPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, NewFileError("get", key, ErrFileNotFound)
		}
		return nil, nil, NewFileError("get", key, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, NewFileError("get", key, err)
	}
	if stat.IsDir() {
		f.Close()
		return nil, nil, NewFileError("get", key, ErrFileNotFound)
	}

	info := &FileInfo{
		Key:       key,
		Size:      stat.Size(),
		CreatedAt: stat.ModTime(),
	}

	if mtype, err := mimetype.DetectReader(f); err == nil {
		info.ContentType = mtype.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, NewFileError("get", key, err)
	}

	return f, info, nil
}

func (s *DiskFileStore) Delete(ctx context.Context, key string) error {
	if s.fs == nil {
		return ErrStoreNotInitialized
	}
	if err := validateKey(key); err != nil {
		return NewFileError("delete", key, err)
	}

	name := fsPath(key)
	stat, err := s.fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return NewFileError("delete", key, ErrFileNotFound)
		}
		return NewFileError("delete", key, err)
	}
	if err := s.fs.Remove(name); err != nil {
		return NewFileError("delete", key, err)
	}

	s.release(stat.Size())
	return nil
}

func (s *DiskFileStore) List(ctx context.Context, prefix string) ([]*FileInfo, error) {
	if s.fs == nil {
		return nil, ErrStoreNotInitialized
	}

	var files []*FileInfo
	walkErr := afero.Walk(s.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		key := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if prefix == "" || strings.HasPrefix(key, prefix) {
			files = append(files, &FileInfo{
				Key:       key,
				Size:      info.Size(),
				CreatedAt: info.ModTime(),
			})
		}
		return nil
	})
	if walkErr != nil {
		return nil, NewFileError("list", prefix, walkErr)
	}

	return files, nil
}

func (s *DiskFileStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.fs == nil {
		return false, ErrStoreNotInitialized
	}
	if err := validateKey(key); err != nil {
		return false, NewFileError("exists", key, err)
	}

	stat, err := s.fs.Stat(fsPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewFileError("exists", key, err)
	}
	return !stat.IsDir(), nil
}

func (s *DiskFileStore) GetInfo(ctx context.Context, key string) (*FileInfo, error) {
	if s.fs == nil {
		return nil, ErrStoreNotInitialized
	}
	if err := validateKey(key); err != nil {
		return nil, NewFileError("get_info", key, err)
	}

	name := fsPath(key)
	stat, err := s.fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewFileError("get_info", key, ErrFileNotFound)
		}
		return nil, NewFileError("get_info", key, err)
	}
	if stat.IsDir() {
		return nil, NewFileError("get_info", key, ErrFileNotFound)
	}

	info := &FileInfo{
		Key:       key,
		Size:      stat.Size(),
		CreatedAt: stat.ModTime(),
	}

	if f, err := s.fs.Open(name); err == nil {
		if mtype, err := mimetype.DetectReader(f); err == nil {
			info.ContentType = mtype.String()
		}
		f.Close()
	}

	return info, nil
}

func (s *DiskFileStore) ProjectDir(projectID string) (string, bool) {
	if s.root == "" || projectID == "" {
		return "", false
	}
	dir := filepath.Join(s.root, "projects", projectID)
	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		return "", false
	}
	return dir, true
}

func (s *DiskFileStore) Close() error {
	return nil
}

// reserve checks the total-bytes quota and accounts for the write. Usage is
// computed lazily on first use and maintained incrementally after that.
func (s *DiskFileStore) reserve(key string, size int64) error {
	if s.config.MaxTotalBytes <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usedValid {
		var total int64
		afero.Walk(s.fs, "/", func(_ string, info os.FileInfo, err error) error {
			if err == nil && info != nil && !info.IsDir() {
				total += info.Size()
			}
			return nil
		})
		s.used = total
		s.usedValid = true
	}

	var existing int64
	if stat, err := s.fs.Stat(fsPath(key)); err == nil && !stat.IsDir() {
		existing = stat.Size()
	}

	if s.used-existing+size > s.config.MaxTotalBytes {
		return ErrStorageQuotaExceeded
	}

	s.used += size - existing
	return nil
}

func (s *DiskFileStore) release(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usedValid {
		s.used -= size
		if s.used < 0 {
			s.used = 0
		}
	}
}
