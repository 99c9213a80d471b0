package models

import "encoding/json"

// RawEvent is a single observation fetched from the tracking service.
// Events are read for a bounded time window and never persisted locally.
type RawEvent struct {
	Duration Seconds   `json:"duration"`
	Data     EventData `json:"data"`
}

// Seconds is an event duration in seconds. Absent or non-numeric values
// decode to zero instead of failing the whole event batch.
type Seconds float64

// UnmarshalJSON implements tolerant decoding for watcher-supplied durations
func (s *Seconds) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		*s = 0
		return nil
	}
	if f, ok := v.(float64); ok {
		*s = Seconds(f)
	} else {
		*s = 0
	}
	return nil
}

// EventData is the open-ended payload of a raw event. Keys depend on the
// producing watcher, so fields are probed through ordered synonym lists.
type EventData map[string]any

// String returns the first non-empty string value among the given keys
func (d EventData) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := d[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Number returns the first numeric value among the given keys. Only the
// first matching key is honored, synonyms within the same event are not
// summed.
func (d EventData) Number(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := d[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
