package export

import (
	"context"
	"fmt"
	"io"

	"cashbook/internal/ledger"
	"cashbook/internal/models"

	"gopkg.in/yaml.v3"
)

// YAMLExporter writes the full snapshot, templates and schedules
// included. Its output is what ReadSnapshot and the backup files read.
type YAMLExporter struct{}

func (YAMLExporter) MimeType() string  { return "application/yaml" }
func (YAMLExporter) Extension() string { return "yaml" }

func (YAMLExporter) GenerateExport(ctx context.Context, w io.Writer, snap *ledger.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot parses a YAML snapshot. Structural problems are reported
// as validation errors; the ledger checks the content on import.
func ReadSnapshot(r io.Reader) (*ledger.Snapshot, error) {
	var snap ledger.Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return nil, &models.InvalidRecordError{Entity: "snapshot", Reason: err.Error()}
	}
	return &snap, nil
}
