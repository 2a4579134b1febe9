package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// legacyKeys maps field names used by older config files onto current ones.
var legacyKeys = map[string]string{
	"autoArchive":         "enabled",
	"autoArchiveEnabled":  "enabled",
	"archiveDelay":        "delayMinutes",
	"delay":               "delayMinutes",
	"archiveDelayMinutes": "delayMinutes",
	"archiveLocation":     "location",
	"archivePath":         "location",
	"archiveDir":          "location",
	"verify":              "verification",
	"verificationMode":    "verification",
}

// unit-bearing legacy delay fields, converted to minutes
var legacyDelayUnits = map[string]float64{
	"archiveDelayHours": 60,
	"delayHours":        60,
	"archiveDelayDays":  60 * 24,
}

var knownKeys = []string{"version", "enabled", "delayMinutes", "location", "verification"}

// Migrate builds a config from a decoded JSON object of any schema version.
// Missing fields come from Default, legacy names are renamed, loosely typed
// values ("30", "true") are coerced, and the result is stamped with
// CurrentVersion. raw is not modified. The returned notes describe every
// change made; a field that cannot be decoded keeps its default.
func Migrate(raw map[string]any) (ArchivalConfig, []string) {
	var notes []string
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[k] = v
	}

	legacy := make([]string, 0, len(legacyKeys))
	for k := range legacyKeys {
		legacy = append(legacy, k)
	}
	sort.Strings(legacy)
	for _, old := range legacy {
		v, ok := fields[old]
		if !ok {
			continue
		}
		current := legacyKeys[old]
		delete(fields, old)
		if _, exists := fields[current]; exists {
			notes = append(notes, fmt.Sprintf("dropped legacy field %s (superseded by %s)", old, current))
			continue
		}
		fields[current] = v
		notes = append(notes, fmt.Sprintf("renamed legacy field %s to %s", old, current))
	}

	for old, factor := range legacyDelayUnits {
		v, ok := fields[old]
		if !ok {
			continue
		}
		delete(fields, old)
		if _, exists := fields["delayMinutes"]; exists {
			notes = append(notes, fmt.Sprintf("dropped legacy field %s (superseded by delayMinutes)", old))
			continue
		}
		var n float64
		if err := weakDecode(v, &n); err != nil {
			notes = append(notes, fmt.Sprintf("ignored legacy field %s: %v", old, err))
			continue
		}
		fields["delayMinutes"] = int(n * factor)
		notes = append(notes, fmt.Sprintf("converted legacy field %s to delayMinutes", old))
	}

	cfg := Default()
	if _, ok := fields["version"]; !ok {
		cfg.Version = 1
	}
	for _, key := range knownKeys {
		v, ok := fields[key]
		if !ok {
			if key != "version" {
				notes = append(notes, fmt.Sprintf("added missing field %s", key))
			}
			continue
		}
		if err := weakDecode(map[string]any{key: v}, &cfg); err != nil {
			notes = append(notes, fmt.Sprintf("reset %s to default: %v", key, err))
		}
	}

	cfg.Location = strings.TrimSpace(cfg.Location)
	cfg.Verification = Verification(strings.ToLower(strings.TrimSpace(string(cfg.Verification))))

	cfg, repaired := sanitize(cfg)
	notes = append(notes, repaired...)

	if cfg.Version != CurrentVersion {
		notes = append(notes, fmt.Sprintf("upgraded schema version %d to %d", cfg.Version, CurrentVersion))
		cfg.Version = CurrentVersion
	}
	return cfg, notes
}

// weakDecode decodes with mapstructure's weakly typed conversions, matching
// struct fields by their json names.
func weakDecode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// sanitize replaces out-of-range values with defaults.
func sanitize(cfg ArchivalConfig) (ArchivalConfig, []string) {
	def := Default()
	var notes []string
	if cfg.DelayMinutes < 0 || cfg.DelayMinutes > MaxDelayMinutes {
		notes = append(notes, fmt.Sprintf("reset delayMinutes %d to %d (allowed 0..%d)", cfg.DelayMinutes, def.DelayMinutes, MaxDelayMinutes))
		cfg.DelayMinutes = def.DelayMinutes
	}
	if cfg.Location == "" {
		notes = append(notes, fmt.Sprintf("reset empty location to %s", def.Location))
		cfg.Location = def.Location
	}
	switch cfg.Verification {
	case VerifyCount, VerifySize, VerifyDigest:
	default:
		notes = append(notes, fmt.Sprintf("reset verification %q to %s", cfg.Verification, def.Verification))
		cfg.Verification = def.Verification
	}
	if cfg.Version < 1 {
		cfg.Version = 1
	}
	return cfg, notes
}
