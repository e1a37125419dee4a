package detect

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

type errorLog struct {
	SchemaVersion string  `json:"schema_version"`
	Errors        []Error `json:"errors"`
}

// LogErrors appends records to build_logs/errors_detected.json, preserving
// everything already there, and mirrors one line per error into the build
// log. The document is rewritten whole; appends never truncate prior entries.
func (d *Detector) LogErrors(errs []Error) error {
	if len(errs) == 0 {
		return nil
	}
	doc, err := d.readLog()
	if err != nil {
		return err
	}
	doc.Errors = append(doc.Errors, errs...)
	path := layout.Path(d.root, layout.ErrorsFile)
	if err := layout.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	for _, e := range errs {
		if err := d.log.LogError(e.ID, string(e.Type), string(e.Severity)); err != nil {
			d.logger.Warn().Err(err).Str("error_id", e.ID).Msg("failed to mirror error into build log")
		}
	}
	return nil
}

// LoadErrors returns every persisted error record, oldest first.
func (d *Detector) LoadErrors() ([]Error, error) {
	doc, err := d.readLog()
	if err != nil {
		return nil, err
	}
	return doc.Errors, nil
}

// UpdateErrorStatus rewrites one record's lifecycle status and attempt
// counter. The recovery engine calls this as it works through errors.
func (d *Detector) UpdateErrorStatus(id, status string, attempts int) error {
	doc, err := d.readLog()
	if err != nil {
		return err
	}
	for i := range doc.Errors {
		if doc.Errors[i].ID == id {
			doc.Errors[i].Status = status
			doc.Errors[i].RecoveryAttempts = attempts
			return layout.WriteJSON(layout.Path(d.root, layout.ErrorsFile), doc)
		}
	}
	return fmt.Errorf("error record %s: %w", id, errdef.ErrNotFound)
}

func (d *Detector) readLog() (*errorLog, error) {
	path := layout.Path(d.root, layout.ErrorsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &errorLog{SchemaVersion: layout.SchemaVersion}, nil
		}
		return nil, fmt.Errorf("failed to read error log: %w", err)
	}
	var doc errorLog
	if err := json.Unmarshal(b, &doc); err != nil {
		// A corrupt error log must not block recording fresh errors.
		d.logger.Warn().Err(err).Msg("error log unparsable, starting a fresh document")
		return &errorLog{SchemaVersion: layout.SchemaVersion}, nil
	}
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = layout.SchemaVersion
	}
	return &doc, nil
}
