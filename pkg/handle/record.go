package handle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Well-known entry types.
const (
	TypeURL      = "URL"
	TypeEmail    = "EMAIL"
	TypeChecksum = "CHECKSUM"
	TypeHSAdmin  = "HS_ADMIN"
)

// Value formats.
const (
	FormatString = "string"
	FormatBase64 = "base64"
	FormatAdmin  = "admin"
)

// Record is a handle record as returned by the server: the handle name, its
// entries in server order, and the Handle protocol response code.
type Record struct {
	Handle       string
	Values       []Entry
	ResponseCode int
}

// Entry is one typed, indexed line of a handle record.
type Entry struct {
	Index       int
	Type        string
	Data        Data
	TTL         *int
	Timestamp   *time.Time
	Permissions string
}

// Data is the value of an entry. Value holds string and base64 payloads,
// Admin holds HS_ADMIN payloads, and Raw keeps the JSON of any other
// structured value so it survives a read-modify-write cycle untouched.
type Data struct {
	Format string
	Value  string
	Admin  *AdminValue
	Raw    json.RawMessage
}

// AdminValue grants the administrator identified by Handle and Index the
// rights encoded in Permissions on the record it is part of.
type AdminValue struct {
	Handle      string `json:"handle"`
	Index       int    `json:"index"`
	Permissions string `json:"permissions"`
}

// StringData returns a string-format value.
func StringData(v string) Data {
	return Data{Format: FormatString, Value: v}
}

// Base64Data returns a base64-format value holding b.
func Base64Data(b []byte) Data {
	return Data{Format: FormatBase64, Value: base64.StdEncoding.EncodeToString(b)}
}

// AdminData returns an admin-format value.
func AdminData(v AdminValue) Data {
	return Data{Format: FormatAdmin, Admin: &v}
}

// Bytes decodes a base64-format value. Other formats return their string
// value as-is.
func (d Data) Bytes() ([]byte, error) {
	if d.Format != FormatBase64 {
		return []byte(d.Value), nil
	}
	b, err := base64.StdEncoding.DecodeString(d.Value)
	if err != nil {
		return nil, &Error{Op: "Bytes", Err: ErrEncoding, Msg: "invalid base64 payload", Cause: err}
	}
	return b, nil
}

// String returns a printable form of the value.
func (d Data) String() string {
	switch {
	case d.Admin != nil:
		return fmt.Sprintf("%s:%d %s", d.Admin.Handle, d.Admin.Index, d.Admin.Permissions)
	case len(d.Raw) > 0:
		return string(d.Raw)
	default:
		return d.Value
	}
}

// ToMap returns the record as type -> value, keeping the first entry of
// every type.
func (r *Record) ToMap() map[string]string {
	m := make(map[string]string, len(r.Values))
	for _, e := range r.Values {
		if _, ok := m[e.Type]; ok {
			continue
		}
		m[e.Type] = e.Data.String()
	}
	return m
}
