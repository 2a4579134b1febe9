package index

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// coerceIndex turns whatever is in the index file into a valid Index. It
// never fails: malformed JSON yields an empty index, and each entry field of
// the wrong type falls back to "", 0 or now. Every change is described in
// the returned notes.
func coerceIndex(data []byte, now time.Time) (*Index, []string) {
	idx := &Index{Version: Version, LastUpdated: now, Archives: []Entry{}}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return idx, []string{"index file is not a JSON object; starting with an empty index"}
	}

	var notes []string
	switch v := raw["version"].(type) {
	case string:
		if v != Version {
			notes = append(notes, fmt.Sprintf("upgraded index version %q to %q", v, Version))
		}
	case nil:
		notes = append(notes, "stamped missing index version")
	default:
		notes = append(notes, fmt.Sprintf("replaced non-string index version %v", v))
	}

	if t, ok := coerceTime(raw["lastUpdated"]); ok {
		idx.LastUpdated = t
	}

	items, ok := raw["archives"].([]any)
	if !ok {
		notes = append(notes, "index has no archives array; starting with an empty list")
		return idx, notes
	}

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("dropped archives[%d]: not an object (%T)", i, item))
			continue
		}
		entry, fixes := coerceEntry(obj, now)
		for _, f := range fixes {
			notes = append(notes, fmt.Sprintf("archives[%d].%s", i, f))
		}
		idx.Archives = append(idx.Archives, entry)
	}
	return idx, notes
}

func coerceEntry(obj map[string]any, now time.Time) (Entry, []string) {
	var e Entry
	var fixes []string

	str := func(key string) string {
		switch v := obj[key].(type) {
		case string:
			return v
		case nil:
			fixes = append(fixes, fmt.Sprintf("%s: missing, set to empty", key))
			return ""
		default:
			var s string
			if err := decode(v, &s); err != nil {
				fixes = append(fixes, fmt.Sprintf("%s: invalid %T, set to empty", key, v))
				return ""
			}
			fixes = append(fixes, fmt.Sprintf("%s: coerced %T to string", key, v))
			return s
		}
	}
	date := func(key string) time.Time {
		t, ok := coerceTime(obj[key])
		if !ok {
			fixes = append(fixes, fmt.Sprintf("%s: invalid or missing, set to now", key))
			return now
		}
		return t
	}

	e.SpecName = str("specName")
	e.ArchivePath = str("archivePath")
	e.CompletionDate = date("completionDate")
	e.ArchivalDate = date("archivalDate")

	var n int
	switch v := obj["totalTasks"].(type) {
	case float64:
		n = int(v)
	default:
		if err := decode(v, &n); err != nil || v == nil {
			fixes = append(fixes, "totalTasks: invalid or missing, set to 0")
			n = 0
		} else {
			fixes = append(fixes, fmt.Sprintf("totalTasks: coerced %T to number", v))
		}
	}
	if n < 0 {
		fixes = append(fixes, "totalTasks: negative, set to 0")
		n = 0
	}
	e.TotalTasks = n
	return e, fixes
}

// decode converts loosely typed JSON scalars ("12", 12.0, true) with
// mapstructure's weak typing. Objects and arrays never convert to scalars.
func decode(in, out any) error {
	switch in.(type) {
	case map[string]any, []any:
		return fmt.Errorf("unexpected %T", in)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// coerceTime accepts RFC 3339 strings and Unix epoch numbers in seconds or
// milliseconds.
func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epoch(n), true
		}
	case float64:
		return epoch(int64(t)), true
	}
	return time.Time{}, false
}

func epoch(n int64) time.Time {
	// values past the year 2286 in seconds are taken as milliseconds
	if n > 9_999_999_999 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
