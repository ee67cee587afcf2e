package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// PlaceholderSecretKey is the committed base value of SecretKey. Deployed
// production-like records must replace it.
const PlaceholderSecretKey = "your-secret-key-here"

// DefaultKey is the selection key used when a name matches no profile.
const DefaultKey = "default"

// LogLevel is the textual log verbosity carried by a Record.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// ParseLogLevel accepts the level names case-insensitively.
func ParseLogLevel(raw string) (LogLevel, error) {
	switch lvl := LogLevel(strings.ToUpper(strings.TrimSpace(raw))); lvl {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return lvl, nil
	default:
		return "", fmt.Errorf("unknown log level %q", raw)
	}
}

// UnmarshalText lets YAML documents carry levels in any case.
func (l *LogLevel) UnmarshalText(text []byte) error {
	lvl, err := ParseLogLevel(string(text))
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

// ZapLevel maps the level onto zap. Unknown values map to info.
func (l LogLevel) ZapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Record is a fully resolved configuration. It is passed by value so a
// resolved record cannot be changed behind its holder's back.
type Record struct {
	Debug                    bool     `yaml:"debug"`
	Testing                  bool     `yaml:"testing"`
	SecretKey                string   `yaml:"secret_key" validate:"required"`
	Host                     string   `yaml:"host" validate:"required"`
	Port                     int      `yaml:"port" validate:"min=1,max=65535"`
	LogFile                  string   `yaml:"log_file" validate:"required"`
	LogLevel                 LogLevel `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	RequestTimeoutSeconds    int      `yaml:"request_timeout_seconds" validate:"gte=0,max=86400"`
	ConnectionTimeoutSeconds int      `yaml:"connection_timeout_seconds" validate:"gte=0,max=86400"`
}

// RequestTimeout returns RequestTimeoutSeconds as a duration.
func (r Record) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSeconds) * time.Second
}

// ConnectionTimeout returns ConnectionTimeoutSeconds as a duration.
func (r Record) ConnectionTimeout() time.Duration {
	return time.Duration(r.ConnectionTimeoutSeconds) * time.Second
}

// ProductionLike reports whether neither debug nor testing is enabled.
func (r Record) ProductionLike() bool {
	return !r.Debug && !r.Testing
}

// Redacted returns a copy safe to log or expose over the API.
func (r Record) Redacted() Record {
	if r.SecretKey != "" {
		r.SecretKey = "[redacted]"
	}
	return r
}

// Apply returns a copy of r with every non-nil field of o replacing the
// corresponding value.
func (r Record) Apply(o Overrides) Record {
	if o.Debug != nil {
		r.Debug = *o.Debug
	}
	if o.Testing != nil {
		r.Testing = *o.Testing
	}
	if o.SecretKey != nil {
		r.SecretKey = *o.SecretKey
	}
	if o.Host != nil {
		r.Host = *o.Host
	}
	if o.Port != nil {
		r.Port = *o.Port
	}
	if o.LogFile != nil {
		r.LogFile = *o.LogFile
	}
	if o.LogLevel != nil {
		r.LogLevel = *o.LogLevel
	}
	if o.RequestTimeoutSeconds != nil {
		r.RequestTimeoutSeconds = *o.RequestTimeoutSeconds
	}
	if o.ConnectionTimeoutSeconds != nil {
		r.ConnectionTimeoutSeconds = *o.ConnectionTimeoutSeconds
	}
	return r
}

// Overrides is a partial Record. Profiles, the YAML file, environment
// variables, and CLI flags all produce one.
type Overrides struct {
	Debug                    *bool     `yaml:"debug,omitempty"`
	Testing                  *bool     `yaml:"testing,omitempty"`
	SecretKey                *string   `yaml:"secret_key,omitempty"`
	Host                     *string   `yaml:"host,omitempty"`
	Port                     *int      `yaml:"port,omitempty"`
	LogFile                  *string   `yaml:"log_file,omitempty"`
	LogLevel                 *LogLevel `yaml:"log_level,omitempty"`
	RequestTimeoutSeconds    *int      `yaml:"request_timeout_seconds,omitempty"`
	ConnectionTimeoutSeconds *int      `yaml:"connection_timeout_seconds,omitempty"`
}

// Profile names a deployment environment.
type Profile string

const (
	Development Profile = "development"
	Production  Profile = "production"
	Testing     Profile = "testing"
)

var base = Record{
	Debug:                    false,
	Testing:                  false,
	SecretKey:                PlaceholderSecretKey,
	Host:                     "0.0.0.0",
	Port:                     80,
	LogFile:                  "/opt/confidant/logs/app.log",
	LogLevel:                 LevelInfo,
	RequestTimeoutSeconds:    30,
	ConnectionTimeoutSeconds: 10,
}

var profiles = map[Profile]Overrides{
	Development: {Debug: ptr(true), LogLevel: ptr(LevelDebug)},
	Production:  {},
	Testing:     {Testing: ptr(true), Debug: ptr(true)},
}

var selection = map[string]Profile{
	string(Development): Development,
	string(Production):  Production,
	string(Testing):     Testing,
	DefaultKey:          Production,
}

// Base returns a copy of the base defaults.
func Base() Record {
	return base
}

// Lookup returns the profile selected by name. The boolean is false when
// name is not a selection key and the default entry was used instead.
func Lookup(name string) (Profile, bool) {
	if p, ok := selection[name]; ok {
		return p, true
	}
	return selection[DefaultKey], false
}

// Resolve merges the profile selected by name over the base defaults.
// Unknown names resolve like DefaultKey.
func Resolve(name string) Record {
	p, _ := Lookup(name)
	return base.Apply(profiles[p])
}

// Profiles lists the selection keys in sorted order.
func Profiles() []string {
	keys := make([]string, 0, len(selection))
	for k := range selection {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ptr[T any](v T) *T {
	return &v
}
