package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/schemas"
	"github.com/jonathan/catalog-sync/internal/types"
	schemafiles "github.com/jonathan/catalog-sync/schemas"
)

// SchemaError reports a snapshot document that does not match the snapshot schema.
type SchemaError struct {
	Source string
	Cause  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("snapshot %s does not match schema: %v", e.Source, e.Cause)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Save writes snap to path as indented JSON, creating parent directories.
// The file is written to a temp file first and renamed into place.
func Save(path string, snap *types.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// Load reads and decodes the snapshot file at path.
func Load(path string) (*types.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	snap, err := decode(f, path)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Decode validates the document in r against the snapshot schema and decodes it.
func Decode(r io.Reader) (*types.Snapshot, error) {
	return decode(r, "(stream)")
}

func decode(r io.Reader, source string) (*types.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := schemas.Validate(schemafiles.Snapshot, data); err != nil {
		return nil, &SchemaError{Source: source, Cause: err}
	}

	var snap types.Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Sellers == nil {
		snap.Sellers = map[uuid.UUID]*types.Seller{}
	}
	return &snap, nil
}
