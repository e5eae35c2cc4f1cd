package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/graft/internal/model"
)

// marshalObject converts an open map to canonical JSON TEXT for storage.
func marshalObject(obj model.Object) (string, error) {
	if obj == nil {
		obj = model.Object{}
	}
	data, err := model.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses JSON TEXT into an open map. Large integers keep
// their precision because model.Object decodes through json.Number.
func unmarshalObject(data string) (model.Object, error) {
	if data == "" || data == "{}" {
		return model.Object{}, nil
	}
	var obj model.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

// marshalStrings stores an ordered id list as a JSON array.
func marshalStrings(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := model.MarshalCanonical(model.Strings(ids...))
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	return ids, nil
}

func marshalInts(xs []int) (string, error) {
	if xs == nil {
		xs = []int{}
	}
	data, err := json.Marshal(xs)
	if err != nil {
		return "", fmt.Errorf("marshal indices: %w", err)
	}
	return string(data), nil
}

// unmarshalInts returns nil for an empty list, matching a State with no
// pending retry.
func unmarshalInts(data string) ([]int, error) {
	var xs []int
	if err := json.Unmarshal([]byte(data), &xs); err != nil {
		return nil, fmt.Errorf("unmarshal indices: %w", err)
	}
	if len(xs) == 0 {
		return nil, nil
	}
	return xs, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Times are stored as UTC unix nanoseconds.
func timeNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanosTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
