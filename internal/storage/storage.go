// Package storage keeps the files behind file_upload and image_upload
// fields. The field value only carries a reference; the bytes live here.
package storage

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// FileStorage abstracts file persistence. Local-disk today, S3 later.
type FileStorage interface {
	// Save persists file content and returns the key used for retrieval and deletion.
	Save(ctx context.Context, namespace, fileID, filename string, reader io.Reader) (key string, err error)
	// Open returns a reader for the stored file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the file from storage. Missing files are not an error.
	Delete(ctx context.Context, key string) error
}

// Namespace is the key prefix of the files of one entity instance. It
// returns false for ids that are not a single path segment.
func Namespace(entityType, entityID string) (string, bool) {
	if entityID == "" || entityID == "." || strings.Contains(entityID, "..") || strings.ContainsAny(entityID, `/\`) {
		return "", false
	}
	return path.Join(entityType, entityID), true
}

// Key is the storage key of a file saved under namespace.
func Key(namespace, fileID, filename string) (string, bool) {
	name := cleanName(filename)
	if name == "" || fileID == "" || strings.ContainsAny(fileID, `/\.`) {
		return "", false
	}
	return path.Join(namespace, fileID, name), true
}

func cleanName(filename string) string {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || name == `\` {
		return ""
	}
	return name
}
