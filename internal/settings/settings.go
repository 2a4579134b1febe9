// Package settings resolves CLI settings from flags, SPECKEEPER_* environment
// variables, a project .env file, <root>/.speckeeper/settings.yaml and
// defaults, in that order of precedence.
package settings

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/markdown"
	"github.com/felixgeelhaar/speckeeper/internal/watch"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "SPECKEEPER"
	// Dir holds per-project state under the project root.
	Dir = ".speckeeper"
	// FileName is the settings file inside Dir.
	FileName = "settings.yaml"
	// DotEnvFile is read from the project root.
	DotEnvFile = ".env"
)

// Settings configures the CLI. Paths are absolute after Load.
type Settings struct {
	Root      string `mapstructure:"root" yaml:"root" json:"root" validate:"required"`
	SpecsDir  string `mapstructure:"specs_dir" yaml:"specs_dir" json:"specs_dir"`
	ConfigDir string `mapstructure:"config_dir" yaml:"config_dir" json:"config_dir"`

	Log     LogSettings     `mapstructure:"log" yaml:"log" json:"log"`
	Output  OutputSettings  `mapstructure:"output" yaml:"output" json:"output"`
	Parser  ParserSettings  `mapstructure:"parser" yaml:"parser" json:"parser"`
	Metrics MetricsSettings `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Watch   WatchSettings   `mapstructure:"watch" yaml:"watch" json:"watch"`
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=json text"`
}

// OutputSettings controls how command results are printed.
type OutputSettings struct {
	Format  string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=text json yaml"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color" json:"no_color"`
}

type ParserSettings struct {
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth" json:"max_depth" validate:"gte=1,lte=64"`
}

type MetricsSettings struct {
	// File receives the metrics in Prometheus text format after each run.
	File string `mapstructure:"file" yaml:"file" json:"file"`
}

// WatchSettings configures the watch daemon.
type WatchSettings struct {
	Schedule string        `mapstructure:"schedule" yaml:"schedule" json:"schedule" validate:"required"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce" validate:"gte=0"`
}

var defaults = map[string]any{
	"root":             ".",
	"specs_dir":        "",
	"config_dir":       "",
	"log.level":        "warn",
	"log.format":       "text",
	"output.format":    "text",
	"output.no_color":  false,
	"parser.max_depth": markdown.DefaultMaxDepth,
	"metrics.file":     "",
	"watch.schedule":   watch.DefaultSchedule,
	"watch.debounce":   watch.DefaultDebounce,
}

// flagKeys maps CLI flag names onto settings keys.
var flagKeys = map[string]string{
	"root":         "root",
	"specs-dir":    "specs_dir",
	"config-dir":   "config_dir",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"format":       "output.format",
	"no-color":     "output.no_color",
	"max-depth":    "parser.max_depth",
	"metrics-file": "metrics.file",
	"schedule":     "watch.schedule",
	"debounce":     "watch.debounce",
}

// Keys returns every settings key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable for a settings key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Loader layers the settings sources.
type Loader struct {
	fs afero.Fs
	v  *viper.Viper
}

// NewLoader creates a loader reading files from fs. Environment variables
// are read from the process environment.
func NewLoader(fs afero.Fs) *Loader {
	v := viper.New()
	v.SetFs(fs)
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{fs: fs, v: v}
}

// SetDefault replaces the lowest-precedence value of key. The CLI uses it
// for the discovered project root.
func (l *Loader) SetDefault(key string, value any) {
	l.v.SetDefault(key, value)
}

// BindFlags binds the known flags present in flags. Flags only override the
// other layers when they were set on the command line.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves and validates the settings. The returned notes name the
// files that contributed.
func (l *Loader) Load() (Settings, []string, error) {
	var notes []string

	root, err := filepath.Abs(l.v.GetString("root"))
	if err != nil {
		return Settings{}, nil, errors.Wrap(errors.ErrCodeConfigRead, "failed to resolve project root", err)
	}

	path := filepath.Join(root, Dir, FileName)
	if ok, _ := afero.Exists(l.fs, path); ok {
		l.v.SetConfigFile(path)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return Settings{}, nil, errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to read %s", path), err).
				WithSuggestion("Fix the YAML syntax or delete the file to use defaults")
		}
		notes = append(notes, fmt.Sprintf("read %s", path))
	}

	envPath := filepath.Join(root, DotEnvFile)
	if data, err := afero.ReadFile(l.fs, envPath); err == nil {
		vars, err := godotenv.Unmarshal(string(data))
		if err != nil {
			return Settings{}, nil, errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to parse %s", envPath), err)
		}
		if overlay := dotenvOverlay(vars); len(overlay) > 0 {
			if err := l.v.MergeConfigMap(overlay); err != nil {
				return Settings{}, nil, errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to apply %s", envPath), err)
			}
			notes = append(notes, fmt.Sprintf("read %s", envPath))
		}
	}

	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return Settings{}, notes, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to decode settings", err)
	}
	s.Root = root
	s.SpecsDir = resolve(root, s.SpecsDir, filepath.Join(root, "specs"))
	s.ConfigDir = resolve(root, s.ConfigDir, root)
	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
	s.Output.Format = strings.ToLower(strings.TrimSpace(s.Output.Format))

	if err := Validate(s); err != nil {
		return s, notes, err
	}
	return s, notes, nil
}

// dotenvOverlay turns SPECKEEPER_* entries from a .env file into a nested
// map for the known keys. Variables already set in the process environment
// are left to AutomaticEnv.
func dotenvOverlay(vars map[string]string) map[string]any {
	overlay := map[string]any{}
	for _, key := range Keys() {
		name := EnvName(key)
		val, ok := vars[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		node := overlay
		parts := strings.Split(key, ".")
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = val
	}
	return overlay
}

func resolve(root, path, fallback string) string {
	switch {
	case path == "":
		return fallback
	case filepath.IsAbs(path):
		return filepath.Clean(path)
	default:
		return filepath.Join(root, path)
	}
}

// LogConfig builds the logger configuration for these settings, writing to w.
func (s Settings) LogConfig(w io.Writer) log.Config {
	return log.ConfigFromStrings(s.Log.Level, s.Log.Format, w)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}

// Validate checks the decoded settings.
func Validate(s Settings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "invalid settings", err)
	}
	var problems []string
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid settings: %s", strings.Join(problems, "; "))).
		WithSuggestion(fmt.Sprintf("Check %s and the %s_* environment variables", filepath.Join(Dir, FileName), EnvPrefix))
}

// describe names a failed field by its settings key, e.g. "log.level".
func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", ns)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s (got %q)", ns, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range (got %v)", ns, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", ns, fe.Tag())
	}
}
