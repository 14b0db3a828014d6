package character

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var profileFields = []string{"name", "storyTitle", "summary", "relations", "characterType"}

var relationFields = []string{"name", "relation"}

// extractJSONObject trims prose and code fences around the first JSON
// object in a model reply.
func extractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// decodeObject parses exactly one JSON object into its raw fields
func decodeObject(reply string) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(extractJSONObject(reply)))
	dec.UseNumber()

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrSchemaViolation, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: null response", ErrSchemaViolation)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrSchemaViolation)
	}
	return fields, nil
}

// requireExactFields fails when fields is not exactly the named set
func requireExactFields(fields map[string]json.RawMessage, want []string) error {
	allowed := make(map[string]bool, len(want))
	for _, name := range want {
		allowed[name] = true
		raw, ok := fields[name]
		if !ok {
			return fmt.Errorf("%w: missing field %q", ErrSchemaViolation, name)
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%w: field %q is null", ErrSchemaViolation, name)
		}
	}

	var extra []string
	for name := range fields {
		if !allowed[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%w: unexpected fields %v", ErrSchemaViolation, extra)
	}
	return nil
}

// parsePresence accepts only {"character_present": 0|1}
func parsePresence(reply string) (bool, error) {
	fields, err := decodeObject(reply)
	if err != nil {
		return false, err
	}
	if err := requireExactFields(fields, []string{"character_present"}); err != nil {
		return false, err
	}

	switch string(bytes.TrimSpace(fields["character_present"])) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: character_present must be 0 or 1, got %s", ErrSchemaViolation, fields["character_present"])
	}
}

// parseProfile returns nil for an empty object and an error for any
// response that does not match the profile schema exactly.
func parseProfile(reply string) (*Profile, error) {
	fields, err := decodeObject(reply)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	if err := requireExactFields(fields, profileFields); err != nil {
		return nil, err
	}

	var relations []map[string]json.RawMessage
	if err := json.Unmarshal(fields["relations"], &relations); err != nil {
		return nil, fmt.Errorf("%w: relations must be a list of objects: %v", ErrSchemaViolation, err)
	}
	for i, rel := range relations {
		if err := requireExactFields(rel, relationFields); err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
	}

	var profile Profile
	if err := json.Unmarshal([]byte(extractJSONObject(reply)), &profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if profile.Relations == nil {
		profile.Relations = []Relation{}
	}
	return &profile, nil
}
