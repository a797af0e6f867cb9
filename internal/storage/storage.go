// Package storage provides optional cloud upload of finished meeting
// artifacts. The silence-split pipeline never depends on upload success;
// a failed upload is reported to the caller and the local file stays put.
package storage

import (
	"context"
	"errors"
)

// ErrUploadNotConfigured is returned when artifact upload is attempted
// without cloud storage configured.
var ErrUploadNotConfigured = errors.New("storage: artifact upload is not configured")

// Uploader pushes finished artifacts to cloud storage.
type Uploader interface {
	// Upload stores the file at localPath under the given key and
	// returns the remote URL.
	Upload(ctx context.Context, localPath, key string) (url string, err error)
}

// Compile-time check that Disabled implements Uploader.
var _ Uploader = (*Disabled)(nil)

// Disabled is the Uploader used when no cloud storage is configured.
type Disabled struct{}

// Upload always returns ErrUploadNotConfigured.
func (Disabled) Upload(_ context.Context, _, _ string) (string, error) {
	return "", ErrUploadNotConfigured
}
