// Package ulid wraps github.com/oklog/ulid/v2 with prefixed, sortable identifiers
// that serialize to JSON and SQL as plain strings.
package ulid

import (
	"bytes"
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Identifier prefixes
const (
	PrefixGeneration = "gen"
	PrefixRequest    = "req"
	PrefixRun        = "run"

	// PrefixSeparator is used to separate the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// ULID is a ulid.ULID with an optional prefix
type ULID struct {
	ulid.ULID
	prefix string
}

// Generate creates a new ULID with the current timestamp
func Generate() ULID {
	return NewWithTime(time.Now())
}

// GenerateWithPrefix creates a new prefixed ULID with the current timestamp
func GenerateWithPrefix(prefix string) ULID {
	id := NewWithTime(time.Now())
	id.prefix = prefix
	return id
}

// NewWithTime creates a new ULID with a specific timestamp
func NewWithTime(t time.Time) ULID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return ULID{id, ""}
}

// Parse parses a plain or prefixed ULID string such as "gen-01AN4Z07BY79KA1307SR9X4MV3"
func Parse(id string) (ULID, error) {
	prefix, raw := split(id)

	parsed, err := ulid.Parse(raw)
	if err != nil {
		return ULID{}, err
	}

	return ULID{parsed, prefix}, nil
}

// Validate reports whether id is a valid plain or prefixed ULID
func Validate(id string) bool {
	_, raw := split(id)
	_, err := ulid.ParseStrict(raw)
	return err == nil
}

// ValidateWithPrefix reports whether id is a valid ULID carrying the given prefix
func ValidateWithPrefix(id, prefix string) bool {
	p, _ := split(id)
	return p == prefix && Validate(id)
}

func split(id string) (prefix, raw string) {
	if i := strings.LastIndex(id, PrefixSeparator); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

// Compare compares two ULIDs ignoring prefixes
func (u ULID) Compare(other ULID) int {
	return bytes.Compare(u.ULID[:], other.ULID[:])
}

// IsZero returns true if the ULID is the zero value
func (u ULID) IsZero() bool {
	return u.ULID == ulid.ULID{}
}

// Prefix returns the prefix of the ULID
func (u ULID) Prefix() string {
	return u.prefix
}

// String returns "prefix-ulid", or the bare ULID when there is no prefix
func (u ULID) String() string {
	if u.prefix != "" {
		return u.prefix + PrefixSeparator + u.ULID.String()
	}
	return u.ULID.String()
}

// Time returns the timestamp component of the ULID
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// MarshalJSON implements json.Marshaler
func (u ULID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (u *ULID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Value implements driver.Valuer
func (u ULID) Value() (driver.Value, error) {
	return u.String(), nil
}

// Scan implements sql.Scanner
func (u *ULID) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		return nil
	case string:
		parsed, err := Parse(src)
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(src))
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into ULID", src)
}

// GenerationID generates a new generation identifier
func GenerationID() string {
	return GenerateWithPrefix(PrefixGeneration).String()
}

// RequestID generates a new request identifier
func RequestID() string {
	return GenerateWithPrefix(PrefixRequest).String()
}

// RunID generates a new test run identifier
func RunID() string {
	return GenerateWithPrefix(PrefixRun).String()
}
