package chunkstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalStore implements BlobStore on the local filesystem
type LocalStore struct {
	basePath string
	mutex    sync.RWMutex // For concurrent access safety
}

// NewLocalStore creates a new local chunk store rooted at basePath
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Error().Err(err).Str("path", basePath).Msg("failed to create chunk storage directory")
		return nil, fmt.Errorf("failed to create chunk storage directory: %w", err)
	}

	log.Info().Str("path", basePath).Msg("local chunk store initialized")
	return &LocalStore{
		basePath: basePath,
	}, nil
}

// Store saves content to the local filesystem with an atomic write.
// Writing to an existing path replaces the previous object, which is what
// makes chunk re-sends idempotent.
func (ls *LocalStore) Store(ctx context.Context, path string, content io.Reader, contentType string) error {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	fullPath := filepath.Join(ls.basePath, path)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("path", path).Str("dir", dir).Msg("failed to create directory")
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file first so a partially written chunk never
	// becomes visible at the final path
	tempPath := fullPath + ".tmp." + fmt.Sprintf("%d", time.Now().UnixNano())
	tempFile, err := os.Create(tempPath)
	if err != nil {
		log.Error().Err(err).Str("path", path).Str("temp_path", tempPath).Msg("failed to create temporary file")
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	defer func() {
		tempFile.Close()
		if _, err := os.Stat(tempPath); err == nil {
			os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	multiWriter := io.MultiWriter(tempFile, hasher)

	bytesWritten, err := io.Copy(multiWriter, content)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to write content to temporary file")
		return fmt.Errorf("failed to write content: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to sync temporary file")
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	tempFile.Close()

	if err := os.Rename(tempPath, fullPath); err != nil {
		log.Error().Err(err).Str("path", path).Str("temp_path", tempPath).Msg("failed to move temporary file to final location")
		return fmt.Errorf("failed to move file to final location: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	duration := time.Since(startTime)

	log.Debug().
		Str("path", path).
		Str("content_type", contentType).
		Int64("bytes_written", bytesWritten).
		Str("checksum", checksum).
		Dur("duration", duration).
		Msg("chunk object stored")

	return nil
}

// Retrieve gets content from the local filesystem
func (ls *LocalStore) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	fullPath := filepath.Join(ls.basePath, path)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("chunk object not found")
			return nil, fmt.Errorf("object not found: %s", path)
		}
		log.Error().Err(err).Str("path", path).Msg("failed to open chunk object")
		return nil, fmt.Errorf("failed to open object: %w", err)
	}

	return file, nil
}

// Delete removes content from the local filesystem. Deleting a missing
// object is not an error.
func (ls *LocalStore) Delete(ctx context.Context, path string) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	fullPath := filepath.Join(ls.basePath, path)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("chunk object already deleted or does not exist")
			return nil
		}
		log.Error().Err(err).Str("path", path).Msg("failed to delete chunk object")
		return fmt.Errorf("failed to delete object: %w", err)
	}

	log.Debug().Str("path", path).Msg("chunk object deleted")
	return nil
}

// Exists checks if content exists in the local filesystem
func (ls *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	fullPath := filepath.Join(ls.basePath, path)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	_, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		log.Error().Err(err).Str("path", path).Msg("failed to check object existence")
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// GetSize returns the size of content in the local filesystem
func (ls *LocalStore) GetSize(ctx context.Context, path string) (int64, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	fullPath := filepath.Join(ls.basePath, path)

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("object not found: %s", path)
		}
		log.Error().Err(err).Str("path", path).Msg("failed to stat chunk object")
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}

	return info.Size(), nil
}

// ModTime returns the last modification time of the object. The orphan
// sweep uses this to age chunk groups.
func (ls *LocalStore) ModTime(ctx context.Context, path string) (time.Time, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	fullPath := filepath.Join(ls.basePath, path)

	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	default:
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("object not found: %s", path)
		}
		log.Error().Err(err).Str("path", path).Msg("failed to stat chunk object")
		return time.Time{}, fmt.Errorf("failed to stat object: %w", err)
	}

	return info.ModTime(), nil
}

// List returns paths matching the prefix in the local filesystem
func (ls *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	searchPath := filepath.Join(ls.basePath, prefix)
	var paths []string

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				log.Debug().Err(err).Str("path", path).Msg("skipping inaccessible path")
				return filepath.SkipDir
			}
			return err
		}

		if !info.IsDir() {
			relPath, err := filepath.Rel(ls.basePath, path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("failed to get relative path")
				return err
			}
			paths = append(paths, filepath.ToSlash(relPath))
		}

		return nil
	})

	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("failed to list chunk objects")
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return paths, nil
}
