package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Storage uploads objects into one public bucket.
type Storage struct {
	t      *transport
	bucket string
}

func escapeObjectPath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// Upload stores data at objectPath, replacing any existing object, and returns
// its public URL. The caller's access token in ctx authorises the write.
func (s *Storage) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	objectPath = strings.Trim(objectPath, "/")
	if objectPath == "" {
		return "", fmt.Errorf("upload: object path is empty")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("upload %s: empty payload", objectPath)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	err := s.t.do(ctx, request{
		service:     "storage",
		resource:    s.bucket,
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + url.PathEscape(s.bucket) + "/" + escapeObjectPath(objectPath),
		body:        data,
		contentType: contentType,
		headers:     map[string]string{"x-upsert": "true", "cache-control": "3600"},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return s.PublicURL(objectPath), nil
}

// PublicURL returns the anonymous download URL of objectPath.
func (s *Storage) PublicURL(objectPath string) string {
	return s.t.baseURL + "/storage/v1/object/public/" + url.PathEscape(s.bucket) + "/" + escapeObjectPath(objectPath)
}
