package confloader

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix prefixes every environment variable the loader reads.
const DefaultEnvPrefix = "AUTHMESH_"

// Loader layers configuration sources onto a struct tagged with koanf tags.
// A Loader is single use: build one per load.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	file      string
	overrides map[string]any

	// envKeys maps SERVER_HTTP_ADDR style names to server.http.addr.
	envKeys map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile names a YAML file to load. An empty path skips the file.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.file = path }
}

// WithOverrides applies values on top of every other source. Keys are
// dotted ("server.http.addr"); command line flags arrive this way.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
		envKeys:   map[string]string{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges file, environment and overrides, in rising priority, into
// target. Fields no source mentions keep their current values, so target
// is normally pre-filled with defaults.
func (l *Loader) Load(target any) error {
	for _, key := range structKeys(reflect.TypeOf(target), "") {
		l.envKeys[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}

	if l.file != "" {
		if err := l.k.Load(file.Provider(l.file), yaml.Parser()); err != nil {
			return fmt.Errorf("load file %s: %w", l.file, err)
		}
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	if len(l.overrides) > 0 {
		if err := l.k.Load(mapProvider(l.overrides), nil); err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}

	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// envKey resolves AUTHMESH_RATE_LIMIT_SECRET to rate_limit.secret using the
// keys of the target. Names the target does not know fall back to
// replacing every underscore with a dot.
func (l *Loader) envKey(name string) string {
	name = strings.TrimPrefix(name, l.envPrefix)
	if key, ok := l.envKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(strings.ToLower(name), "_", ".")
}

// structKeys lists the dotted koanf keys of every leaf field of t.
func structKeys(t reflect.Type, prefix string) []string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if !f.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if nested := structKeys(f.Type, key); len(nested) > 0 {
			keys = append(keys, nested...)
		} else {
			keys = append(keys, key)
		}
	}
	return keys
}
