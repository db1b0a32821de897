// Package upload stores binary payloads on local disk and serves them under
// a base URL. URL-valued fields accept only URLs this adapter produced, so
// documents can never point at arbitrary hosts.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/victorteokw/docmap/ports"
)

var slotPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Local writes payloads under a directory and maps them to baseURL.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates a local-disk uploader. baseURL is the public prefix
// uploaded files are served under, e.g. "http://localhost:9080/uploads".
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Ensure interface compliance.
var _ ports.Uploader = (*Local)(nil)

// Put stores the payload under slot and returns its URL.
func (l *Local) Put(ctx context.Context, slot string, payload io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !slotPattern.MatchString(slot) {
		return "", fmt.Errorf("invalid upload slot %q", slot)
	}
	dst := filepath.Join(l.dir, slot)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, payload); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("write upload: %w", err)
	}
	return l.baseURL + "/" + slot, nil
}

// Owns reports whether the URL points at this uploader's base and names a
// well-formed slot.
func (l *Local) Owns(url string) bool {
	if !strings.HasPrefix(url, l.baseURL+"/") {
		return false
	}
	slot := strings.TrimPrefix(url, l.baseURL+"/")
	return slotPattern.MatchString(slot) && slot == path.Base(slot)
}

// Dir returns the directory payloads are stored in, for serving.
func (l *Local) Dir() string { return l.dir }
