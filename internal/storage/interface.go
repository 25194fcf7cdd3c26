package storage

import (
	"context"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ObjectStorage holds deliverables and chat attachments. Objects are written
// once under a unique key and handed out by URL.
type ObjectStorage interface {
	// Upload stores an object under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns a URL the object can be fetched from
	GetURL(ctx context.Context, key string) (string, error)

	// Delete removes an object; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName keeps the base name of an uploaded file safe for use in a key.
func sanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeName.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}

// DownloadName recovers the sanitized file name from a key built by
// DeliverableKey or AttachmentKey.
func DownloadName(key string) string {
	base := path.Base(key)
	if len(base) > 37 && base[36] == '-' {
		if _, err := uuid.Parse(base[:36]); err == nil {
			return base[37:]
		}
	}
	return base
}

// DeliverableKey builds the object key for a job deliverable.
func DeliverableKey(jobID, filename string) string {
	return path.Join("deliverables", jobID, uuid.New().String()+"-"+sanitizeName(filename))
}

// AttachmentKey builds the object key for a chat attachment.
func AttachmentKey(conversationID, filename string) string {
	return path.Join("attachments", conversationID, uuid.New().String()+"-"+sanitizeName(filename))
}
