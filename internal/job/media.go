package job

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"reelsmith/internal/fileutil"
	"reelsmith/internal/services"
)

// Format tags carried by media handles.
const (
	FormatMP4H264 = "mp4/h264"
	FormatPNG     = "image/png"
	FormatJPEG    = "image/jpeg"
	FormatSRT     = "text/srt"
)

// MediaHandle references an artifact at rest. Handles are read-only: a stage
// that produces new bytes returns a new handle.
type MediaHandle struct {
	Location string `json:"location"`
	Format   string `json:"format"`
}

// IsZero reports whether the handle is unset.
func (h MediaHandle) IsZero() bool {
	return strings.TrimSpace(h.Location) == ""
}

// Remote reports whether the handle points at an http(s) URL rather than a local file.
func (h MediaHandle) Remote() bool {
	loc := strings.ToLower(strings.TrimSpace(h.Location))
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

func (h MediaHandle) String() string {
	if h.IsZero() {
		return "<none>"
	}
	if h.Format == "" {
		return h.Location
	}
	return h.Location + " (" + h.Format + ")"
}

// NewLocalHandle confirms path is an existing, non-empty regular file before
// returning a handle for it.
func NewLocalHandle(path, format string) (MediaHandle, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return MediaHandle{}, services.Wrap(services.ErrMissingInput, "", "media handle", "empty path", nil)
	}
	if _, err := fileutil.RequireNonEmpty(path); err != nil {
		detail := "unusable file " + path
		switch {
		case errors.Is(err, fs.ErrNotExist):
			detail = fmt.Sprintf("%s does not exist", path)
		case errors.Is(err, fileutil.ErrEmptyFile):
			detail = fmt.Sprintf("%s is empty", path)
		}
		return MediaHandle{}, services.Wrap(services.ErrMissingInput, "", "media handle", detail, err)
	}
	return MediaHandle{Location: path, Format: format}, nil
}

// NewRemoteHandle wraps an http(s) URL returned by a generation vendor.
func NewRemoteHandle(rawURL, format string) (MediaHandle, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return MediaHandle{}, services.Wrap(services.ErrPermanent, "", "media handle", fmt.Sprintf("invalid result url %q", rawURL), err)
	}
	return MediaHandle{Location: rawURL, Format: format}, nil
}
