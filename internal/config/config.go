// Package config manages the archival policy stored in .archival-config.json.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

// FileName is the policy file inside the config directory.
const FileName = ".archival-config.json"

// CurrentVersion is the schema version written by this package. Files
// without a version field are treated as version 1.
const CurrentVersion = 2

// MaxDelayMinutes caps the archival delay at one year.
const MaxDelayMinutes = 525600

// Verification selects how a copied archive is checked against its source.
type Verification string

const (
	// VerifyCount compares the number of files.
	VerifyCount Verification = "count"
	// VerifySize compares file counts and every file's size.
	VerifySize Verification = "size"
	// VerifyDigest also compares blake3 digests of every file.
	VerifyDigest Verification = "digest"
)

// ArchivalConfig is the archival policy.
type ArchivalConfig struct {
	Version      int          `json:"version" validate:"gte=1"`
	Enabled      bool         `json:"enabled"`
	DelayMinutes int          `json:"delayMinutes" validate:"gte=0,lte=525600"`
	Location     string       `json:"location" validate:"required"`
	Verification Verification `json:"verification" validate:"oneof=count size digest"`
}

// Default returns the policy used when no file exists.
func Default() ArchivalConfig {
	return ArchivalConfig{
		Version:      CurrentVersion,
		Enabled:      true,
		DelayMinutes: 0,
		Location:     filepath.Join("specs", "archive"),
		Verification: VerifySize,
	}
}

// Delay returns the configured delay as a duration.
func (c ArchivalConfig) Delay() time.Duration {
	return time.Duration(c.DelayMinutes) * time.Minute
}

// ResolveLocation returns the archive root, joining relative locations onto
// the project root.
func (c ArchivalConfig) ResolveLocation(projectRoot string) string {
	if filepath.IsAbs(c.Location) {
		return filepath.Clean(c.Location)
	}
	return filepath.Join(projectRoot, c.Location)
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks ranges and required fields.
func Validate(cfg ArchivalConfig) error {
	problems := Problems(cfg)
	if len(problems) == 0 {
		return nil
	}
	return errors.NewConfigInvalidError(problems)
}

// Problems lists validation failures in user-facing form, keyed by the JSON
// field name.
func Problems(cfg ArchivalConfig) []string {
	cfg.Location = strings.TrimSpace(cfg.Location)
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	var problems []string
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return problems
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s (got %q)", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
