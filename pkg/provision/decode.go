package provision

import (
	"fmt"
	"math"
	"time"

	"go.mozilla.org/pkcs7"
	"howett.net/plist"
)

// Decode parses a .mobileprovision file.
// The file is a CMS (PKCS#7) signed container with a plist payload. Either a
// complete profile is returned, or nil and an error.
func Decode(data []byte) (*ProvisioningProfile, error) {
	content, err := UnwrapEnvelope(data)
	if err != nil {
		return nil, err
	}

	record, err := DecodeRecord(content)
	if err != nil {
		return nil, err
	}

	return FromRecord(record)
}

// UnwrapEnvelope returns the content of a CMS signed-data container.
func UnwrapEnvelope(data []byte) ([]byte, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, &EnvelopeError{Stage: "parse", Cause: err}
	}
	if len(p7.Content) == 0 {
		return nil, &EnvelopeError{Stage: "content", Cause: fmt.Errorf("envelope has no embedded content")}
	}
	return p7.Content, nil
}

// DecodeRecord parses plist bytes into a string-keyed dictionary.
func DecodeRecord(data []byte) (map[string]interface{}, error) {
	var raw interface{}
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, &RecordError{Reason: "unparsable property list", Cause: err}
	}
	record, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &RecordError{Reason: fmt.Sprintf("top level is %T, expected dictionary", raw)}
	}
	return record, nil
}

// FromRecord builds a profile from a decoded record. Every field except
// Platform, ProvisionedDevices and ProvisionsAllDevices is required.
func FromRecord(record map[string]interface{}) (*ProvisioningProfile, error) {
	r := recordReader{record: record}

	p := &ProvisioningProfile{
		UUID:                        r.str("UUID"),
		Name:                        r.str("Name"),
		AppIDName:                   r.str("AppIDName"),
		TeamName:                    r.str("TeamName"),
		TeamIdentifier:              r.strings("TeamIdentifier"),
		ApplicationIdentifierPrefix: r.strings("ApplicationIdentifierPrefix"),
		Entitlements:                r.dict("Entitlements"),
		CreationDate:                r.date("CreationDate"),
		ExpirationDate:              r.date("ExpirationDate"),
		TimeToLive:                  r.integer("TimeToLive"),
		Version:                     r.integer("Version"),
	}
	for _, der := range r.dataList("DeveloperCertificates") {
		p.DeveloperCertificates = append(p.DeveloperCertificates, NewCertificate(der))
	}
	if r.err != nil {
		return nil, r.err
	}

	if _, ok := record["Platform"]; ok {
		p.Platform = r.strings("Platform")
	}
	if _, ok := record["ProvisionedDevices"]; ok {
		p.ProvisionedDevices = r.strings("ProvisionedDevices")
	}
	if v, ok := record["ProvisionsAllDevices"].(bool); ok {
		p.ProvisionsAllDevices = v
	}
	if r.err != nil {
		return nil, r.err
	}

	return p, nil
}

// recordReader extracts typed values and keeps the first failure.
type recordReader struct {
	record map[string]interface{}
	err    error
}

func (r *recordReader) get(key string) (interface{}, bool) {
	if r.err != nil {
		return nil, false
	}
	v, ok := r.record[key]
	if !ok {
		r.err = &RecordError{Field: key, Reason: "is missing"}
		return nil, false
	}
	return v, true
}

func (r *recordReader) mistyped(key string, v interface{}, want string) {
	r.err = &RecordError{Field: key, Reason: fmt.Sprintf("is %T, expected %s", v, want)}
}

func (r *recordReader) str(key string) string {
	v, ok := r.get(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.mistyped(key, v, "string")
	}
	return s
}

func (r *recordReader) date(key string) time.Time {
	v, ok := r.get(key)
	if !ok {
		return time.Time{}
	}
	t, ok := v.(time.Time)
	if !ok {
		r.mistyped(key, v, "date")
	}
	return t
}

func (r *recordReader) dict(key string) map[string]interface{} {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		r.mistyped(key, v, "dictionary")
	}
	return m
}

func (r *recordReader) strings(key string) []string {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		r.mistyped(key, v, "array of strings")
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			r.mistyped(key, item, "array of strings")
			return nil
		}
		out = append(out, s)
	}
	return out
}

func (r *recordReader) dataList(key string) [][]byte {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		r.mistyped(key, v, "array of data")
		return nil
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		b, ok := item.([]byte)
		if !ok {
			r.mistyped(key, item, "array of data")
			return nil
		}
		out = append(out, b)
	}
	return out
}

func (r *recordReader) integer(key string) int {
	v, ok := r.get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		if n >= math.MinInt && n <= math.MaxInt {
			return int(n)
		}
	case uint64:
		if n <= math.MaxInt {
			return int(n)
		}
	}
	r.mistyped(key, v, "integer")
	return 0
}
