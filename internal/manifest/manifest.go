// Package manifest defines the JSON document stored next to every published
// archive. It records what was packaged so a later refresh can detect drift.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is the manifest format written by this provider.
const SchemaVersion = 1

// Manifest describes one publication.
type Manifest struct {
	SchemaVersion   int    `json:"schema_version"`
	ProviderVersion string `json:"provider_version"`
	PublicationID   string `json:"publication_id"`
	CreatedAt       string `json:"created_at"`

	ArchiveName string `json:"archive_name"`
	ArchiveHash string `json:"archive_hash"`
	ArchiveSize int64  `json:"archive_size"`

	SourceFolder string `json:"source_folder,omitempty"`
	SourceHash   string `json:"source_hash,omitempty"`

	// Entries maps each archive entry name to its "sha256:<hex>" hash.
	Entries map[string]string `json:"entries"`
}

// Validate checks the fields a reader depends on.
func (m *Manifest) Validate() error {
	var errs []error
	if m.SchemaVersion != SchemaVersion {
		errs = append(errs, fmt.Errorf("unsupported schema_version %d", m.SchemaVersion))
	}
	if m.PublicationID == "" {
		errs = append(errs, errors.New("publication_id is empty"))
	}
	if m.ArchiveName == "" {
		errs = append(errs, errors.New("archive_name is empty"))
	}
	if m.ArchiveHash == "" {
		errs = append(errs, errors.New("archive_hash is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("manifest: invalid: %w", err)
	}
	return nil
}

// Marshal serializes m as indented JSON. Struct fields keep declaration
// order and encoding/json writes the Entries keys sorted, so equal manifests
// always produce identical bytes.
func Marshal(m *Manifest) ([]byte, error) {
	if m == nil {
		return nil, errors.New("manifest: cannot marshal nil manifest")
	}
	if m.Entries == nil {
		cp := *m
		cp.Entries = map[string]string{}
		m = &cp
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal failed: %w", err)
	}
	return out, nil
}

// Unmarshal parses and validates a manifest.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: unmarshal failed: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
