// Package types defines the core data model: the two location record
// families, the batch produced by an atomic drain, and the processing
// identifiers stamped on every derived artifact.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the two record families.
type Kind string

// Record family kinds.
const (
	KindGPS    Kind = "gps"
	KindMobile Kind = "mobile"
)

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	return k == KindGPS || k == KindMobile
}

// ParseKind parses a kind string, returning an error for unknown values.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown record kind: %q", s)
	}
	return k, nil
}

// Record is a validated, projected location record. Concrete types are
// GPSRecord and MobileRecord; the projection holds exactly the warehouse
// schema fields for the kind.
type Record interface {
	// RecordKind returns the record family.
	RecordKind() Kind
}

// GPSRecord is the validated shape of a vehicle GPS record.
// JSON field names match the warehouse table columns exactly.
type GPSRecord struct {
	DeviceID     string  `json:"deviceId"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Timestamp    string  `json:"timestamp"`
	ProcessedAt  string  `json:"processed_at,omitempty"`
	ProcessingID string  `json:"processing_id,omitempty"`
}

// RecordKind implements Record.
func (GPSRecord) RecordKind() Kind { return KindGPS }

// MobileRecord is the validated shape of a mobile-user location record.
// JSON field names match the warehouse table columns exactly.
type MobileRecord struct {
	UserID       string  `json:"userId"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Timestamp    string  `json:"timestamp"`
	ProcessedAt  string  `json:"processed_at,omitempty"`
	ProcessingID string  `json:"processing_id,omitempty"`
}

// RecordKind implements Record.
func (MobileRecord) RecordKind() Kind { return KindMobile }

// MarshalNDJSON encodes records as newline-delimited JSON, one record per
// line with a trailing newline. This is the staged-object content format.
func MarshalNDJSON(records []Record) ([]byte, error) {
	var out []byte
	for i, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal record %d: %w", i, err)
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}

// DecodeRecords decodes raw JSON values into typed records of the given kind.
// Used when re-hydrating backup and recovery entries from disk.
func DecodeRecords(kind Kind, raws []json.RawMessage) ([]Record, error) {
	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		switch kind {
		case KindGPS:
			var r GPSRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, fmt.Errorf("decode gps record %d: %w", i, err)
			}
			records = append(records, r)
		case KindMobile:
			var r MobileRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, fmt.Errorf("decode mobile record %d: %w", i, err)
			}
			records = append(records, r)
		default:
			return nil, fmt.Errorf("unknown record kind: %q", kind)
		}
	}
	return records, nil
}

// EncodeRecords marshals typed records into raw JSON values for persistence
// inside backup and recovery entries.
func EncodeRecords(records []Record) ([]json.RawMessage, error) {
	raws := make([]json.RawMessage, 0, len(records))
	for i, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		raws = append(raws, json.RawMessage(raw))
	}
	return raws, nil
}

// Batch is the in-memory unit produced by an atomic drain of one queue.
// ProcessingID is immutable for the life of the batch and every artifact
// derived from it (staged object, registry entry, warehouse job id).
type Batch struct {
	Kind         Kind
	Records      []Record
	ProcessingID string
	ExtractedAt  time.Time
}

// Empty reports whether the batch holds no records.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Records) == 0
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}
