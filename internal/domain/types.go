package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringArray is a string list stored as a JSON text column (skills,
// portfolio links).
type StringArray []string

// CleanStrings trims entries and drops blanks and duplicates, keeping order.
func CleanStrings(in []string) StringArray {
	out := make(StringArray, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// NormalizeTags lower-cases tags and drops blanks and duplicates.
func NormalizeTags(in []string) StringArray {
	lowered := make([]string, len(in))
	for i, tag := range in {
		lowered[i] = strings.ToLower(tag)
	}
	return CleanStrings(lowered)
}

// Value encodes the list as JSON; nil is stored as "[]".
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		a = StringArray{}
	}
	b, err := json.Marshal([]string(a))
	return string(b), err
}

// Scan decodes a JSON text or blob column. NULL scans as an empty list.
func (a *StringArray) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = StringArray{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan StringArray from %T", src)
	}
	return json.Unmarshal(raw, (*[]string)(a))
}

// NormalizeAddress lower-cases and trims a wallet address.
// Wallet addresses are the natural key for users and are always compared this way.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress compares two wallet addresses case-insensitively.
// Empty addresses never match.
func SameAddress(a, b string) bool {
	na, nb := NormalizeAddress(a), NormalizeAddress(b)
	return na != "" && na == nb
}
