// Package transfer reads and writes the portable export document: a
// version-tagged JSON copy of every catalog, order list and the journal.
package transfer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/habitsync/internal/model"
)

// Version is the export document version written by Export.
const Version = 1

//go:embed schema.cue
var schemaSource string

// ErrInvalidDocument is returned when an import does not match the schema.
var ErrInvalidDocument = errors.New("invalid export document")

// UnsupportedVersionError is returned for documents of another version.
type UnsupportedVersionError struct {
	Version int
}

// Error implements the error interface.
func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported export version %d (want %d)", e.Version, Version)
}

// Document is the export file layout.
type Document struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Data       model.Snapshot `json:"data"`
}

// Source yields the snapshot to export. Implemented by engine.Engine.
type Source interface {
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

// Sink replaces all local data with an imported snapshot. Implemented by
// engine.Engine.
type Sink interface {
	ReplaceAll(ctx context.Context, snap model.Snapshot) error
}

// Export renders the current snapshot of src as an indented document.
func Export(ctx context.Context, src Source, exportedAt time.Time) ([]byte, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	full := model.EmptySnapshot()
	full.Overlay(snap)

	doc := Document{Version: Version, ExportedAt: exportedAt.UTC(), Data: full}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse checks data against the schema and decodes it.
func Parse(data []byte) (Document, error) {
	var header struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if header.Version == nil {
		return Document{}, fmt.Errorf("%w: version is required", ErrInvalidDocument)
	}
	if *header.Version != Version {
		return Document{}, &UnsupportedVersionError{Version: *header.Version}
	}

	if err := validate(data); err != nil {
		return Document{}, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	full := model.EmptySnapshot()
	full.Overlay(doc.Data)
	doc.Data = full
	return doc, nil
}

// Import parses data and replaces every local collection through sink.
// The sink queues the replacement for the remote.
func Import(ctx context.Context, sink Sink, data []byte) (Document, error) {
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("import: %w", err)
	}
	if err := sink.ReplaceAll(ctx, doc.Data); err != nil {
		return Document{}, fmt.Errorf("import: %w", err)
	}
	return doc, nil
}

func validate(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile export schema: %w", err)
	}

	expr, err := cuejson.Extract("import.json", data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	value := schema.LookupPath(cue.ParsePath("#Export")).Unify(ctx.BuildExpr(expr))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}
