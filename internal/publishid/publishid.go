// Package publishid generates and parses publication IDs of the form
//
//	pub_<UTC timestamp YYYYMMDDTHHMMSSZ>_<8 lowercase hex>
//
// for example pub_20260213T200102Z_6f2c9a1b. IDs sort chronologically as
// plain strings when their timestamps differ.
package publishid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

const timestampLayout = "20060102T150405Z"

var idPattern = regexp.MustCompile(`^pub_(\d{8}T\d{6}Z)_([0-9a-f]{8})$`)

// New returns a fresh publication ID stamped with the current UTC time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a publication ID stamped with t.
func NewAt(t time.Time) string {
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		panic(fmt.Sprintf("publishid: crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("pub_%s_%s", t.UTC().Format(timestampLayout), hex.EncodeToString(suffix[:]))
}

// Parse returns the timestamp encoded in id.
func Parse(id string) (time.Time, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, fmt.Errorf("publishid: malformed publication id %q", id)
	}
	ts, err := time.Parse(timestampLayout, m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("publishid: bad timestamp in %q: %w", id, err)
	}
	return ts, nil
}

// IsValid reports whether id is a well-formed publication ID.
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}
