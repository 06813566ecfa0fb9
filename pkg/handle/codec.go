package handle

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-multierror"
)

// Wire types for the REST JSON format. Pointers distinguish absent fields
// from zero values.

type wireRecord struct {
	ResponseCode int         `json:"responseCode,omitempty"`
	Handle       string      `json:"handle,omitempty"`
	Values       []wireEntry `json:"values"`
}

type wireEntry struct {
	Index       *int            `json:"index"`
	Type        *string         `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	TTL         *int            `json:"ttl,omitempty"`
	Timestamp   *string         `json:"timestamp,omitempty"`
	Permissions *string         `json:"permissions,omitempty"`
}

type wireData struct {
	Format string          `json:"format"`
	Value  json.RawMessage `json:"value"`
}

// Decode parses a REST record body. The body must hold a "values" array
// whose entries all carry an index and a type; entries without data get an
// empty string value.
func Decode(raw []byte) (*Record, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &Error{Op: "Decode", Err: ErrMalformedRecord, Msg: "body is not a JSON object", Cause: err}
	}

	rec := &Record{}
	if v, ok := top["responseCode"]; ok {
		if err := json.Unmarshal(v, &rec.ResponseCode); err != nil {
			return nil, &Error{Op: "Decode", Err: ErrMalformedRecord, Msg: "responseCode is not an integer", Cause: err}
		}
	}
	if v, ok := top["handle"]; ok {
		if err := json.Unmarshal(v, &rec.Handle); err != nil {
			return nil, &Error{Op: "Decode", Err: ErrMalformedRecord, Msg: "handle is not a string", Cause: err}
		}
	}

	rawValues, ok := top["values"]
	if !ok || isNull(rawValues) {
		return nil, &Error{Op: "Decode", Handle: rec.Handle, Err: ErrMalformedRecord, Msg: "record has no values"}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawValues, &entries); err != nil {
		return nil, &Error{Op: "Decode", Handle: rec.Handle, Err: ErrMalformedRecord, Msg: "values is not a list", Cause: err}
	}

	var result *multierror.Error
	rec.Values = make([]Entry, 0, len(entries))
	for i, rawEntry := range entries {
		e, err := decodeEntry(rawEntry)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		rec.Values = append(rec.Values, e)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, &Error{Op: "Decode", Handle: rec.Handle, Err: ErrMalformedRecord, Msg: "invalid entries", Cause: err}
	}

	return rec, nil
}

func decodeEntry(raw json.RawMessage) (Entry, error) {
	var we wireEntry
	if err := json.Unmarshal(raw, &we); err != nil {
		return Entry{}, err
	}
	if we.Index == nil {
		return Entry{}, fmt.Errorf("missing index")
	}
	if we.Type == nil {
		return Entry{}, fmt.Errorf("missing type")
	}

	e := Entry{
		Index: *we.Index,
		Type:  *we.Type,
		TTL:   we.TTL,
	}
	if we.Permissions != nil {
		e.Permissions = *we.Permissions
	}
	if we.Timestamp != nil && *we.Timestamp != "" {
		t, err := dateparse.ParseIn(*we.Timestamp, time.UTC)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid timestamp %q: %w", *we.Timestamp, err)
		}
		t = t.UTC()
		e.Timestamp = &t
	}

	d, err := decodeData(we.Data)
	if err != nil {
		return Entry{}, err
	}
	e.Data = d
	return e, nil
}

func decodeData(raw json.RawMessage) (Data, error) {
	if len(raw) == 0 || isNull(raw) {
		return StringData(""), nil
	}

	// Some servers flatten string data to a bare JSON string.
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Data{}, err
		}
		return StringData(s), nil
	}

	var wd wireData
	if err := json.Unmarshal(raw, &wd); err != nil {
		return Data{}, fmt.Errorf("invalid data: %w", err)
	}
	d := Data{Format: wd.Format}
	if d.Format == "" {
		d.Format = FormatString
	}

	switch {
	case len(wd.Value) == 0 || isNull(wd.Value):
	case wd.Value[0] == '"':
		if err := json.Unmarshal(wd.Value, &d.Value); err != nil {
			return Data{}, err
		}
	case d.Format == FormatAdmin:
		var av AdminValue
		if err := json.Unmarshal(wd.Value, &av); err != nil {
			return Data{}, fmt.Errorf("invalid admin value: %w", err)
		}
		d.Admin = &av
	default:
		d.Raw = append(json.RawMessage(nil), wd.Value...)
	}
	return d, nil
}

// Encode returns the JSON form of rec. It validates the record first, see
// Validate.
//
// Two things are normalized on the way out and come back normalized from
// Decode: an empty Data.Format is written as "string", and timestamps are
// written in UTC. Records built with StringData, Base64Data or AdminData and
// UTC timestamps survive Decode(Encode(rec)) unchanged.
func Encode(rec *Record) ([]byte, error) {
	if err := Validate(rec.Values); err != nil {
		return nil, err
	}
	values, err := toWire(rec.Values)
	if err != nil {
		return nil, &Error{Op: "Encode", Handle: rec.Handle, Err: ErrMalformedRecord, Msg: "invalid entry data", Cause: err}
	}
	wr := wireRecord{
		ResponseCode: rec.ResponseCode,
		Handle:       rec.Handle,
		Values:       values,
	}
	return json.Marshal(wr)
}

// EncodeEntries returns the write-path body {"values": [...]}.
func EncodeEntries(entries []Entry) ([]byte, error) {
	return Encode(&Record{Values: entries})
}

// Validate checks the client-side write invariants: non-negative unique
// indices, non-empty types, valid JSON in Raw data, and well-formed base64
// payloads.
func Validate(entries []Entry) error {
	var result *multierror.Error
	seen := make(map[int]bool, len(entries))
	for i, e := range entries {
		if e.Index < 0 {
			result = multierror.Append(result, fmt.Errorf("entry %d: negative index %d", i, e.Index))
		}
		if seen[e.Index] {
			result = multierror.Append(result, fmt.Errorf("entry %d: duplicate index %d", i, e.Index))
		}
		seen[e.Index] = true
		if e.Type == "" {
			result = multierror.Append(result, fmt.Errorf("entry %d: empty type", i))
		}
		if len(e.Data.Raw) > 0 && e.Data.Admin == nil && !json.Valid(e.Data.Raw) {
			result = multierror.Append(result, fmt.Errorf("entry %d: data value is not valid JSON", i))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return &Error{Op: "Encode", Err: ErrMalformedRecord, Msg: "invalid entries", Cause: err}
	}

	for _, e := range entries {
		if e.Data.Format != FormatBase64 {
			continue
		}
		if _, err := base64.StdEncoding.DecodeString(e.Data.Value); err != nil {
			return &Error{
				Op:    "Encode",
				Err:   ErrEncoding,
				Msg:   fmt.Sprintf("entry %d (%s) is not valid base64", e.Index, e.Type),
				Cause: err,
			}
		}
	}
	return nil
}

func toWire(entries []Entry) ([]wireEntry, error) {
	out := make([]wireEntry, 0, len(entries))
	for _, e := range entries {
		index, typ := e.Index, e.Type
		we := wireEntry{
			Index: &index,
			Type:  &typ,
			TTL:   e.TTL,
		}
		if e.Permissions != "" {
			p := e.Permissions
			we.Permissions = &p
		}
		if e.Timestamp != nil {
			ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
			we.Timestamp = &ts
		}
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", e.Index, e.Type, err)
		}
		we.Data = data
		out = append(out, we)
	}
	return out, nil
}

// MarshalJSON writes the {"format": ..., "value": ...} form.
func (d Data) MarshalJSON() ([]byte, error) {
	format := d.Format
	if format == "" {
		format = FormatString
	}
	var value interface{} = d.Value
	switch {
	case d.Admin != nil:
		value = d.Admin
	case len(d.Raw) > 0:
		value = d.Raw
	}
	return json.Marshal(struct {
		Format string      `json:"format"`
		Value  interface{} `json:"value"`
	}{format, value})
}

// UnmarshalJSON accepts the same shapes as Decode does for entry data.
func (d *Data) UnmarshalJSON(b []byte) error {
	v, err := decodeData(b)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ExtractOneValue returns the value of the first entry whose type equals
// key. The second result is false when no entry has that type.
func ExtractOneValue(rec *Record, key string) (string, bool) {
	if rec == nil {
		return "", false
	}
	for _, e := range rec.Values {
		if e.Type == key {
			return e.Data.String(), true
		}
	}
	return "", false
}

// IndexExists reports whether an entry with the given index is present.
func IndexExists(rec *Record, index int) bool {
	if rec == nil {
		return false
	}
	for _, e := range rec.Values {
		if e.Index == index {
			return true
		}
	}
	return false
}

// IndicesForKey returns the indices of all entries of the given type.
func IndicesForKey(rec *Record, key string) []int {
	if rec == nil {
		return nil
	}
	var indices []int
	for _, e := range rec.Values {
		if e.Type == key {
			indices = append(indices, e.Index)
		}
	}
	return indices
}

// FreeIndex returns the lowest index >= start that is unused in rec and not
// in reserved.
func FreeIndex(rec *Record, start int, reserved ...int) int {
	taken := make(map[int]bool)
	for _, r := range reserved {
		taken[r] = true
	}
	if rec != nil {
		for _, e := range rec.Values {
			taken[e.Index] = true
		}
	}
	i := start
	for taken[i] {
		i++
	}
	return i
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
