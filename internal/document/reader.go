package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	einodoc "github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
)

// ErrTooLarge is returned when a file exceeds the reader's size limit.
var ErrTooLarge = errors.New("document too large")

// Reader turns files on disk into documents. Text files go through the eino
// file loader; binary files are read and base64-encoded.
type Reader struct {
	loader   *file.FileLoader
	maxBytes int64
}

// NewReader builds a reader. maxBytes <= 0 disables the size check.
func NewReader(ctx context.Context, maxBytes int64) (*Reader, error) {
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init document parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Reader{loader: loader, maxBytes: maxBytes}, nil
}

// ReadFile loads path as a document, classifying it by extension.
func (r *Reader) ReadFile(ctx context.Context, path string) (Document, error) {
	name := filepath.Base(path)
	mimeType, err := MIMEFromName(name)
	if err != nil {
		return Document{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", name)
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return Document{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, info.Size())
	}

	kind, _, err := KindFromMIME(mimeType)
	if err != nil {
		return Document{}, err
	}
	if !kind.IsText() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("read %s: %w", name, err)
		}
		return FromBytes(name, mimeType, raw)
	}

	docs, err := r.loader.Load(ctx, einodoc.Source{URI: path})
	if err != nil {
		return Document{}, fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		builder.WriteString(doc.Content)
	}
	return FromText(name, mimeType, builder.String())
}
