// Package validate implements per-record validation and projection for the
// two location record families.
//
// Validation is field-level: every field validator runs and all errors are
// collected, so an invalid record reports everything wrong with it at once.
// A valid record is projected to exactly the warehouse schema fields for its
// kind; unknown fields are dropped at projection. Validation failures never
// fail a batch — invalid records are counted and dropped with stats exposed.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pithecene-io/stratum/types"
)

// Field length caps.
const (
	maxNameLen  = 100
	maxEmailLen = 254
)

// emailPattern is the accepted email shape: non-space local part, @, domain
// with at least one dot.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// sanitizer strips the five characters that open downstream injection paths
// in identity and name fields.
var sanitizer = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")

// FieldError describes a single failed field validation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InvalidRecord is a record that failed validation, with its raw payload and
// the full error list.
type InvalidRecord struct {
	Index  int          `json:"index"`
	Raw    string       `json:"raw"`
	Errors []FieldError `json:"errors"`
}

// Stats summarises a batch validation pass.
type Stats struct {
	Total   int     `json:"total"`
	Valid   int     `json:"valid"`
	Invalid int     `json:"invalid"`
	Rate    float64 `json:"rate"`
}

// Result is the outcome of validating one batch.
type Result struct {
	Valid   []types.Record
	Invalid []InvalidRecord
	Stats   Stats
	// TimestampsSubstituted counts records whose timestamp was missing or
	// unparseable and was replaced with the current wall clock.
	TimestampsSubstituted int
}

// Validator validates and projects queue records. The clock is injectable so
// that validation stays a pure function of record bytes in tests; timestamp
// substitution is the only impure step.
type Validator struct {
	now func() time.Time
}

// New creates a validator using the wall clock.
func New() *Validator {
	return &Validator{now: time.Now}
}

// NewWithClock creates a validator with a fixed clock for tests.
func NewWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// ValidateBatch validates raw queue payloads of the given kind and projects
// the survivors. Every projected record is stamped with the batch processing
// id and the validation-time processed_at timestamp.
func (v *Validator) ValidateBatch(kind types.Kind, raw []string, processingID string) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("validate: unknown kind %q", kind)
	}

	res := &Result{}
	processedAt := v.now().UTC().Format(time.RFC3339)

	for i, payload := range raw {
		fields, parseErr := parsePayload(payload)
		if parseErr != nil {
			res.Invalid = append(res.Invalid, InvalidRecord{
				Index:  i,
				Raw:    payload,
				Errors: []FieldError{{Field: "_record", Reason: parseErr.Error()}},
			})
			continue
		}

		var record types.Record
		var errs []FieldError
		var substituted bool
		switch kind {
		case types.KindGPS:
			record, substituted, errs = v.validateGPS(fields, processingID, processedAt)
		case types.KindMobile:
			record, substituted, errs = v.validateMobile(fields, processingID, processedAt)
		}

		if len(errs) > 0 {
			res.Invalid = append(res.Invalid, InvalidRecord{Index: i, Raw: payload, Errors: errs})
			continue
		}
		if substituted {
			res.TimestampsSubstituted++
		}
		res.Valid = append(res.Valid, record)
	}

	res.Stats = Stats{
		Total:   len(raw),
		Valid:   len(res.Valid),
		Invalid: len(res.Invalid),
	}
	if res.Stats.Total > 0 {
		res.Stats.Rate = float64(res.Stats.Valid) / float64(res.Stats.Total) * 100
	}
	return res, nil
}

// validateGPS checks and projects one GPS record.
func (v *Validator) validateGPS(fields map[string]any, processingID, processedAt string) (types.Record, bool, []FieldError) {
	var errs []FieldError

	deviceID := sanitizer.Replace(stringField(fields, "deviceId"))
	if deviceID == "" {
		errs = append(errs, FieldError{Field: "deviceId", Reason: "required"})
	}

	lat, lng, coordErrs := coordinates(fields)
	errs = append(errs, coordErrs...)

	ts, substituted := v.timestamp(fields)

	if len(errs) > 0 {
		return nil, false, errs
	}
	return types.GPSRecord{
		DeviceID:     deviceID,
		Lat:          lat,
		Lng:          lng,
		Timestamp:    ts,
		ProcessedAt:  processedAt,
		ProcessingID: processingID,
	}, substituted, nil
}

// validateMobile checks and projects one mobile record.
func (v *Validator) validateMobile(fields map[string]any, processingID, processedAt string) (types.Record, bool, []FieldError) {
	var errs []FieldError

	userID := sanitizer.Replace(stringField(fields, "userId"))
	if userID == "" {
		errs = append(errs, FieldError{Field: "userId", Reason: "required"})
	}

	name := sanitizer.Replace(stringField(fields, "name"))
	switch {
	case name == "":
		errs = append(errs, FieldError{Field: "name", Reason: "required"})
	case utf8.RuneCountInString(name) > maxNameLen:
		errs = append(errs, FieldError{Field: "name", Reason: fmt.Sprintf("exceeds %d characters", maxNameLen)})
	}

	email := strings.ToLower(strings.TrimSpace(stringField(fields, "email")))
	switch {
	case email == "":
		errs = append(errs, FieldError{Field: "email", Reason: "required"})
	case len(email) > maxEmailLen:
		errs = append(errs, FieldError{Field: "email", Reason: fmt.Sprintf("exceeds %d characters", maxEmailLen)})
	case !emailPattern.MatchString(email):
		errs = append(errs, FieldError{Field: "email", Reason: "malformed"})
	}

	lat, lng, coordErrs := coordinates(fields)
	errs = append(errs, coordErrs...)

	ts, substituted := v.timestamp(fields)

	if len(errs) > 0 {
		return nil, false, errs
	}
	return types.MobileRecord{
		UserID:       userID,
		Name:         name,
		Email:        email,
		Lat:          lat,
		Lng:          lng,
		Timestamp:    ts,
		ProcessedAt:  processedAt,
		ProcessingID: processingID,
	}, substituted, nil
}

// timestamp returns the record timestamp, substituting the current wall
// clock when missing or unparseable. Substitution maximises load yield; the
// caller records whether it happened.
func (v *Validator) timestamp(fields map[string]any) (string, bool) {
	raw, ok := fields["timestamp"].(string)
	if ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC().Format(time.RFC3339), false
		}
	}
	return v.now().UTC().Format(time.RFC3339), true
}

// coordinates extracts and range-checks lat/lng.
func coordinates(fields map[string]any) (lat, lng float64, errs []FieldError) {
	lat, ok := floatField(fields, "lat")
	switch {
	case !ok:
		errs = append(errs, FieldError{Field: "lat", Reason: "required numeric"})
	case lat < -90 || lat > 90:
		errs = append(errs, FieldError{Field: "lat", Reason: "out of range [-90,90]"})
	}

	lng, ok = floatField(fields, "lng")
	switch {
	case !ok:
		errs = append(errs, FieldError{Field: "lng", Reason: "required numeric"})
	case lng < -180 || lng > 180:
		errs = append(errs, FieldError{Field: "lng", Reason: "out of range [-180,180]"})
	}
	return lat, lng, errs
}

// parsePayload accepts a JSON object string and returns its fields.
func parsePayload(payload string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("not a JSON object: %v", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("null record")
	}
	return fields, nil
}

// stringField returns the named field as a string, coercing numbers.
func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// floatField returns the named field as a float64, coercing numeric strings.
func floatField(fields map[string]any, name string) (float64, bool) {
	switch v := fields[name].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
