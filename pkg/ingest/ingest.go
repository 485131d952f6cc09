// Package ingest validates uploaded benchmark result documents and
// writes them to the store. The HTTP upload endpoint and the legacy
// blob importer both funnel through the same pipeline so every stored
// document has passed the same checks.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mlcommons/mobile-results/pkg/result"
	"github.com/mlcommons/mobile-results/pkg/store"
)

var (
	// ErrUploadDateSet is returned when a client submits a document
	// with meta.upload_date already populated. The server assigns it.
	ErrUploadDateSet = errors.New("meta.upload_date must be null")

	// ErrMissingUUID is returned when meta.uuid is empty. The value
	// is the document's identity and cannot be defaulted.
	ErrMissingUUID = errors.New("meta.uuid is required")
)

// ValidationError wraps a document shape failure so callers can map it
// to a client error without inspecting schema internals.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid result document: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Receipt describes the outcome of one ingested document.
type Receipt struct {
	UUID    string
	Created bool
}

// Pipeline validates and persists result documents.
type Pipeline struct {
	log   logrus.FieldLogger
	store store.Store
}

// NewPipeline creates an ingestion pipeline on top of the given store.
func NewPipeline(log logrus.FieldLogger, st store.Store) *Pipeline {
	return &Pipeline{
		log:   log.WithField("component", "ingest"),
		store: st,
	}
}

// Ingest validates one wire document and inserts it. A document whose
// uuid is already stored is not modified; the receipt reports
// Created=false for it.
func (p *Pipeline) Ingest(
	ctx context.Context, principal string, body []byte,
) (*Receipt, error) {
	doc, record, err := result.ParseWire(body)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}

	if record.Meta.UploadDate != nil {
		return nil, ErrUploadDateSet
	}

	if record.Meta.UUID == "" {
		return nil, ErrMissingUUID
	}

	// The app generates rfc 4122 uuids, but the identity contract only
	// requires uniqueness. Legacy blobs carry other formats, so a
	// parse failure is worth a warning and nothing more.
	if _, err := uuid.Parse(record.Meta.UUID); err != nil {
		p.log.WithField("uuid", record.Meta.UUID).
			Warn("Result identity is not a well-formed uuid")
	}

	// Store the normalized wire form, not the raw client bytes, so
	// reads always serve documents that round-trip the shape checks.
	wire, err := result.EncodeDocument(doc)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}

	stored, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	row := &store.Row{
		UUID:      record.Meta.UUID,
		Principal: principal,
		Document:  string(stored),
	}
	row.SetFlags(result.DeriveFlags(record.EnvironmentInfo.Platform))

	created, err := p.store.Create(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("storing result: %w", err)
	}

	p.log.WithField("uuid", record.Meta.UUID).
		WithField("principal", principal).
		WithField("created", created).
		Debug("Result ingested")

	return &Receipt{UUID: record.Meta.UUID, Created: created}, nil
}
