package local

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ArtifactState tells what a run left at a well-known path.
type ArtifactState int

const (
	// Absent: the container did not write the file.
	Absent ArtifactState = iota

	// Present: the file is found and parsed.
	Present

	// Malformed: the file is found, but it cannot be parsed.
	Malformed
)

func (s ArtifactState) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

// Artifact is a file extracted from a container after its run.
type Artifact[T any] struct {
	// Path in the container.
	Path  string
	State ArtifactState

	// Value is meaningful only when State is Present.
	Value T

	// Err is the cause for Absent (when not simply missing) or Malformed.
	Err error
}

func (a Artifact[T]) Ok() bool {
	return a.State == Present
}

// Message describes the artifact for operators.
func (a Artifact[T]) Message() string {
	switch a.State {
	case Present:
		return fmt.Sprintf("%s is found", a.Path)
	case Malformed:
		return fmt.Sprintf("%s is found, but malformed: %s", a.Path, a.Err)
	default:
		if a.Err != nil && !errors.Is(a.Err, ErrNotFound) {
			return fmt.Sprintf("%s is not found: %s", a.Path, a.Err)
		}
		return fmt.Sprintf("%s is not found", a.Path)
	}
}

// NoStatusReason is the reason of tasks which have no status.
const NoStatusReason = "no status found"

// Status is what the task reports in status.json.
type Status struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Success is true when status is "success", case-insensitively.
func (s *Status) Success() bool {
	return s != nil && strings.EqualFold(s.Status, "success")
}

func parseStatus(buf []byte) (Status, error) {
	var s Status
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&s); err != nil {
		return Status{}, err
	}
	if s.Status == "" {
		return Status{}, errors.New(`"status" is missing or empty`)
	}
	return s, nil
}

// parsePorts parses ports.json, which is a JSON object from port name to value.
//
// Strings are taken as is. Other scalars are taken in their JSON notation.
func parsePorts(buf []byte) (map[string]string, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}
	ret := make(map[string]string, len(raw))
	for k, v := range raw {
		trimmed := bytes.TrimSpace(v)
		if len(trimmed) == 0 {
			continue
		}
		switch trimmed[0] {
		case '"':
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("port %s: %w", k, err)
			}
			ret[k] = s
		case '{', '[':
			return nil, fmt.Errorf("port %s: value should be a scalar, but %s", k, trimmed)
		case 'n':
			// null: leave it unset
		default:
			ret[k] = string(trimmed)
		}
	}
	return ret, nil
}
