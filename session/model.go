package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	recordPrefix    = "refresh_token:"
	tombstonePrefix = "used_refresh_token:"
	indexPrefix     = "user_sessions:"

	// tombstoneMarker is stored when the retiring caller does not know the subject.
	tombstoneMarker = "true"
)

// Data is the session record bound to one live refresh token.
type Data struct {
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IP       string `json:"ip"`
	DeviceID string `json:"device_id"`
}

func (d Data) validate() error {
	if d.Sub == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidData)
	}
	if d.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidData)
	}
	if strings.Contains(d.DeviceID, ":") {
		return fmt.Errorf("%w: device id must not contain ':'", ErrInvalidData)
	}
	return nil
}

func encodeData(d Data) ([]byte, error) {
	return json.Marshal(d)
}

func decodeData(raw []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if d.Sub == "" {
		return Data{}, fmt.Errorf("%w: missing subject", ErrCorrupt)
	}
	return d, nil
}

func recordKey(token string) string {
	return recordPrefix + token
}

func tombstoneKey(token string) string {
	return tombstonePrefix + token
}

func indexKey(sub, deviceID string) string {
	return indexPrefix + sub + ":" + deviceID
}

// indexPattern matches every device slot of sub. Glob metacharacters in the subject
// are escaped so one subject can never match another's slots.
func indexPattern(sub string) string {
	return indexPrefix + escapeGlob(sub) + ":*"
}

// deviceFromIndexKey returns the device id of an index key belonging to sub.
// Keys of a different subject that happen to share the prefix are rejected.
func deviceFromIndexKey(key, sub string) (string, bool) {
	rest, ok := strings.CutPrefix(key, indexPrefix+sub+":")
	if !ok || rest == "" || strings.Contains(rest, ":") {
		return "", false
	}
	return rest, true
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	// ErrNotFound is returned when no live session record exists for a token.
	ErrNotFound = errors.New("session not found")
	// ErrReused is returned when a token has already been retired.
	ErrReused = errors.New("session token already used")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
	// ErrInvalidData is returned for records missing required fields.
	ErrInvalidData = errors.New("invalid session data")
)
