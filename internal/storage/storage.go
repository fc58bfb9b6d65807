// Package storage moves translation artifacts in and out of object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a container or object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidName is returned for empty or unusable container and object names.
	ErrInvalidName = errors.New("invalid object name")
)

// ObjectStore is the storage surface translation jobs read from and write to.
type ObjectStore interface {
	// Put uploads data as name inside container. size may be -1 when unknown.
	Put(ctx context.Context, container, name string, data io.Reader, size int64, contentType string) error
	// Get downloads an object in full.
	Get(ctx context.Context, container, name string) ([]byte, error)
	// Exists reports whether an object is present.
	Exists(ctx context.Context, container, name string) (bool, error)
	// EnsureContainer creates container if it does not exist yet.
	EnsureContainer(ctx context.Context, container string) error
}

// Presigner hands out time-limited download links that need no further credentials.
type Presigner interface {
	PresignGet(ctx context.Context, container, name string, expiry time.Duration) (string, error)
}

// StorageError describes a failed storage call.
type StorageError struct {
	Op         string
	Container  string
	Name       string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	target := e.Container
	if e.Name != "" {
		target += "/" + e.Name
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("storage: %s %s: status %d: %v", e.Op, target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, target, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StorageError) Unwrap() error {
	return e.Err
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadToken returns a short random tag that keeps uploads of equally named
// files within the same second apart.
func UploadToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// BlobName derives the object name for an uploaded source document as
// <stem>-<yyyymmddhhmmss>-<token>-<lang><ext>. An empty token is left out.
func BlobName(original, targetLang string, now time.Time, token string) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	stem = strings.Trim(unsafeNameChars.ReplaceAllString(stem, "_"), "_.")
	if stem == "" {
		stem = "document"
	}
	ext = strings.ToLower(unsafeNameChars.ReplaceAllString(ext, ""))
	lang := strings.ToLower(unsafeNameChars.ReplaceAllString(targetLang, ""))
	if lang == "" {
		lang = "xx"
	}

	stamp := now.UTC().Format("20060102150405")
	if token = strings.ToLower(unsafeNameChars.ReplaceAllString(token, "")); token != "" {
		stamp += "-" + token
	}
	return fmt.Sprintf("%s-%s-%s%s", stem, stamp, lang, ext)
}

// ValidateContainerName checks the naming rules shared by blob containers and S3 buckets.
func ValidateContainerName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("%w: container %q must be 3-63 characters", ErrInvalidName, name)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(name)-1 && name[i-1] != '-':
		default:
			return fmt.Errorf("%w: container %q may only use lowercase letters, digits and single inner hyphens", ErrInvalidName, name)
		}
	}
	return nil
}

func validateObject(container, name string) error {
	if err := ValidateContainerName(container); err != nil {
		return err
	}
	if strings.Trim(name, "/") == "" {
		return fmt.Errorf("%w: object name is empty", ErrInvalidName)
	}
	return nil
}
