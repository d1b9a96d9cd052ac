package document

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for media types the analyzer cannot handle.
var ErrUnsupported = errors.New("unsupported document type")

// Kind is the closed set of document shapes the analyzer accepts.
type Kind int

const (
	KindPlainText Kind = iota + 1
	KindMarkdown
	KindImage
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindPlainText:
		return "text"
	case KindMarkdown:
		return "markdown"
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// IsText reports whether documents of this kind carry raw text instead of
// base64 data.
func (k Kind) IsText() bool {
	return k == KindPlainText || k == KindMarkdown
}

var imageSubtypes = map[string]struct{}{
	"png":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
	"heic": {},
	"heif": {},
}

var extTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".pdf":      "application/pdf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".webp":     "image/webp",
	".heic":     "image/heic",
	".heif":     "image/heif",
}

// KindFromMIME classifies a media type. Parameters such as charset are
// ignored. For images the subtype is returned as well.
func KindFromMIME(mimeType string) (Kind, string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "text/plain":
		return KindPlainText, "", nil
	case "text/markdown", "text/x-markdown":
		return KindMarkdown, "", nil
	case "application/pdf":
		return KindPDF, "", nil
	case "image/jpg":
		return KindImage, "jpeg", nil
	}
	if sub, ok := strings.CutPrefix(mt, "image/"); ok {
		if _, known := imageSubtypes[sub]; known {
			return KindImage, sub, nil
		}
	}
	return 0, "", fmt.Errorf("%w: %q", ErrUnsupported, mimeType)
}

// MIMEFromName guesses the media type from a file extension.
func MIMEFromName(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := extTypes[ext]; ok {
		return mt, nil
	}
	return "", fmt.Errorf("%w: extension %q", ErrUnsupported, ext)
}

// Document is one uploaded item. Text kinds fill Text; binary kinds fill Data
// with base64 that has no data-URL prefix.
type Document struct {
	Kind    Kind
	Subtype string
	Name    string
	Text    string
	Data    string
}

// MIMEType returns the media type sent along with the document.
func (d Document) MIMEType() string {
	switch d.Kind {
	case KindPlainText:
		return "text/plain"
	case KindMarkdown:
		return "text/markdown"
	case KindPDF:
		return "application/pdf"
	case KindImage:
		return "image/" + d.Subtype
	default:
		return ""
	}
}

// Bytes decodes the base64 payload of a binary document.
func (d Document) Bytes() ([]byte, error) {
	if d.Kind.IsText() {
		return []byte(d.Text), nil
	}
	raw, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, fmt.Errorf("decode document data: %w", err)
	}
	return raw, nil
}

// FromText builds a text document. mimeType must name a text kind.
func FromText(name, mimeType, text string) (Document, error) {
	kind, _, err := KindFromMIME(mimeType)
	if err != nil {
		return Document{}, err
	}
	if !kind.IsText() {
		return Document{}, fmt.Errorf("%w: %s is not a text type", ErrUnsupported, mimeType)
	}
	return Document{Kind: kind, Name: name, Text: text}, nil
}

// FromBytes builds a document from raw file contents.
func FromBytes(name, mimeType string, raw []byte) (Document, error) {
	kind, sub, err := KindFromMIME(mimeType)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Kind: kind, Subtype: sub, Name: name}
	if kind.IsText() {
		doc.Text = string(raw)
	} else {
		doc.Data = base64.StdEncoding.EncodeToString(raw)
	}
	return doc, nil
}

// FromDataURL parses "data:<mime>[;base64],<payload>". Binary kinds keep the
// base64 payload with the prefix stripped; text kinds are decoded to text.
func FromDataURL(name, dataURL string) (Document, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return Document{}, errors.New("not a data url")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Document{}, errors.New("data url has no payload")
	}
	isBase64 := false
	mimeType := header
	if i := strings.IndexByte(header, ';'); i >= 0 {
		mimeType = header[:i]
		for _, param := range strings.Split(header[i+1:], ";") {
			if strings.EqualFold(strings.TrimSpace(param), "base64") {
				isBase64 = true
			}
		}
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}
	kind, sub, err := KindFromMIME(mimeType)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Kind: kind, Subtype: sub, Name: name}

	switch {
	case kind.IsText() && isBase64:
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Document{}, fmt.Errorf("decode data url: %w", err)
		}
		doc.Text = string(raw)
	case kind.IsText():
		text, err := url.PathUnescape(payload)
		if err != nil {
			return Document{}, fmt.Errorf("decode data url: %w", err)
		}
		doc.Text = text
	case isBase64:
		if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
			return Document{}, fmt.Errorf("decode data url: %w", err)
		}
		doc.Data = payload
	default:
		raw, err := url.PathUnescape(payload)
		if err != nil {
			return Document{}, fmt.Errorf("decode data url: %w", err)
		}
		doc.Data = base64.StdEncoding.EncodeToString([]byte(raw))
	}
	return doc, nil
}
