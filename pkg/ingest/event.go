// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest turns campus event pages and poster images into
// structured board records using Gemini.
package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Source types recorded on extracted events.
const (
	SourceURL   = "url"
	SourceImage = "image"
)

// Event is one extracted campus event record. Fields the extractor
// could not determine are omitted from the encoded form.
type Event struct {
	EventName      string   `json:"event_name,omitempty"`
	EventDateStart string   `json:"event_date_start,omitempty"`
	EventDateEnd   string   `json:"event_date_end,omitempty"`
	Location       string   `json:"location,omitempty"`
	Organizer      string   `json:"organizer,omitempty"`
	TargetAudience string   `json:"target_audience,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Description    string   `json:"description,omitempty"`
	SourceType     string   `json:"source_type"`
	SourceData     string   `json:"source_data"`
	Tags           []string `json:"tags"`
	Error          string   `json:"error,omitempty"`
}

// EncodeJSON writes the record as two-space indented UTF-8 JSON with
// multibyte text left unescaped.
func (e *Event) EncodeJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(e), "encoding event")
}

// WriteFile saves the record to path in its EncodeJSON form.
func (e *Event) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := e.EncodeJSON(&buf); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0644), "writing %s", path)
}
