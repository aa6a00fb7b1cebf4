// Package attachment classifies binary payloads by their content signature.
package attachment

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
)

// unknown is what the detector reports when no signature matches.
const unknown = "application/octet-stream"

// textRoot is the ancestor of every type found by the text heuristics
// (json, html, csv...). Those have no binary signature.
const textRoot = "text/plain"

// DefaultMaxSize bounds a single attachment.
const DefaultMaxSize = 10 << 20

// Inspector derives MIME types from payload bytes. Client-supplied names and
// content types are never consulted.
type Inspector struct {
	maxSize int
	allow   []string // type prefixes such as "image/" or exact types; empty allows any recognized type
}

// NewInspector builds an inspector. maxSize <= 0 selects DefaultMaxSize.
func NewInspector(maxSize int, allow []string) *Inspector {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Inspector{maxSize: maxSize, allow: allow}
}

// Classify returns the detected MIME type of data.
func (in *Inspector) Classify(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errs.ErrUnrecognizedFormat
	}
	if len(data) > in.maxSize {
		return "", fmt.Errorf("%w: %d bytes", errs.ErrAttachmentTooLarge, len(data))
	}
	m := mimetype.Detect(data)
	if m.Is(unknown) {
		return "", errs.ErrUnrecognizedFormat
	}
	if textual(m) && !in.named(m) {
		return "", fmt.Errorf("%w: %s has no signature", errs.ErrUnrecognizedFormat, m.String())
	}
	if !in.allowed(m) {
		return "", fmt.Errorf("%w: %s not allowed", errs.ErrUnrecognizedFormat, m.String())
	}
	return m.String(), nil
}

// Inspect classifies data and wraps it as a model attachment.
func (in *Inspector) Inspect(data []byte) (*model.Attachment, error) {
	mt, err := in.Classify(data)
	if err != nil {
		return nil, err
	}
	return &model.Attachment{Data: data, MimeType: mt}, nil
}

func textual(m *mimetype.MIME) bool {
	for t := m; t != nil; t = t.Parent() {
		if t.Is(textRoot) {
			return true
		}
	}
	return false
}

// named reports whether an exact allow-list entry opts m in.
func (in *Inspector) named(m *mimetype.MIME) bool {
	for _, a := range in.allow {
		if !strings.HasSuffix(a, "/") && m.Is(a) {
			return true
		}
	}
	return false
}

func (in *Inspector) allowed(m *mimetype.MIME) bool {
	if len(in.allow) == 0 {
		return true
	}
	for _, a := range in.allow {
		if strings.HasSuffix(a, "/") {
			for t := m; t != nil; t = t.Parent() {
				if strings.HasPrefix(t.String(), a) {
					return true
				}
			}
			continue
		}
		if m.Is(a) {
			return true
		}
	}
	return false
}

// Kind is the rendering branch of a MIME type.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// KindOf maps a MIME type to its rendering branch.
func KindOf(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}
