// Package blob stores attachment files and hands back a stable public URL.
//
// Attachment storage is optional: callers treat every error from a Store as
// a warning and keep the owning record.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"dues/internal/core"
)

// Store accepts a blob under the object key name (see ObjectName) and
// returns the URL it can be fetched from.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (url string, err error)
}

// Attachment is a locally staged file waiting to be uploaded.
type Attachment struct {
	Name string
	Data []byte
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

// ObjectName builds a collision-free object key under folder.
func ObjectName(folder, filename string) string {
	safe := unsafeChars.ReplaceAllString(path.Base(filename), "_")
	stamp := time.Now().UTC().Format("20060102")
	return fmt.Sprintf("%s/%s-%s-%s", folder, stamp, uuid.NewString(), safe)
}

// checkKey rejects keys that are empty, absolute or escape the store root.
func checkKey(name string) (string, error) {
	key := path.Clean(name)
	if name == "" || key == "." || path.IsAbs(key) || key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("invalid object key %q", name)
	}
	return key, nil
}

// Classify turns an upload error into the warning shown to the operator.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrStorageNotConfigured):
		return "attachment storage is not configured; the record was saved without its attachment"
	default:
		return fmt.Sprintf("attachment upload failed: %v; the record was saved without its attachment", err)
	}
}

// Unconfigured is the Store used when BLOB_BACKEND is "none".
type Unconfigured struct{}

func (Unconfigured) Put(context.Context, string, []byte) (string, error) {
	return "", core.ErrStorageNotConfigured
}
