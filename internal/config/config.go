// Package config reads the gateway configuration file.
//
// A configuration names the remote services, the extension document that adds
// cross-service fields, and one binding per extension field:
//
//	services:
//	  - name: users
//	    url: http://localhost:4001/graphql
//	  - name: chirps
//	    url: http://localhost:4002/graphql
//	    timeout: 3s
//	extensions: |
//	  extend type User { chirps: [Chirp] }
//	bindings:
//	  - type: User
//	    field: chirps
//	    service: chirps
//	    fragment: "fragment UserFragment on User { id }"
//	    operation: chirpsByAuthorId
//	    arguments: { authorId: id }
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hanpama/stitchgraph/internal/stitch"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Services []Service `yaml:"services"`
	// Extensions is the extension document inline. ExtensionsFile names a
	// file holding it instead, relative to the configuration file.
	Extensions     string        `yaml:"extensions,omitempty"`
	ExtensionsFile string        `yaml:"extensionsFile,omitempty"`
	Bindings       []Binding     `yaml:"bindings,omitempty"`
	Introspection  Introspection `yaml:"introspection,omitempty"`
	Delegation     Delegation    `yaml:"delegation,omitempty"`
}

type Service struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Timeout bounds each request to the service. Zero keeps the link default.
	Timeout Duration          `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	// MaxResponseBytes bounds response bodies. Zero keeps the link default.
	MaxResponseBytes int64 `yaml:"maxResponseBytes,omitempty"`
}

// Binding assigns an extension field to the service that answers it.
type Binding struct {
	Type    string `yaml:"type"`
	Field   string `yaml:"field"`
	Service string `yaml:"service"`
	// Fragment is `{ id }` or `fragment UserFragment on User { id }`.
	Fragment  string `yaml:"fragment"`
	Operation string `yaml:"operation"`
	// Arguments maps target argument names to fragment field names.
	Arguments map[string]string `yaml:"arguments,omitempty"`
}

// Introspection is the retry policy for acquiring remote schemas at startup.
type Introspection struct {
	Retries    int      `yaml:"retries"`
	MaxElapsed Duration `yaml:"maxElapsed"`
}

type Delegation struct {
	// MaxConcurrency bounds the delegations in flight per execution depth.
	// Zero means unbounded.
	MaxConcurrency int `yaml:"maxConcurrency"`
}

// Defaults applied to fields left unset.
const (
	DefaultRetries    = 3
	DefaultMaxElapsed = 30 * time.Second
)

// Duration is a time.Duration written as "3s" or "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Parse decodes and validates a configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	cfg := &Config{Introspection: Introspection{Retries: -1}}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Introspection.Retries < 0 {
		cfg.Introspection.Retries = DefaultRetries
	}
	if cfg.Introspection.MaxElapsed == 0 {
		cfg.Introspection.MaxElapsed = Duration(DefaultMaxElapsed)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration at path. An extension file is read into
// Extensions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.ExtensionsFile != "" {
		file := cfg.ExtensionsFile
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(path), file)
		}
		text, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("config: extensions: %w", err)
		}
		cfg.Extensions = string(text)
		cfg.ExtensionsFile = ""
	}
	return cfg, nil
}

// Validate checks the configuration without contacting any service.
func (c *Config) Validate() error {
	if len(c.Services) == 0 {
		return errors.New("config: no services configured")
	}
	names := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("config: services[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("config: service %q configured twice", s.Name)
		}
		names[s.Name] = true
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: service %q: url %q is not an http(s) URL", s.Name, s.URL)
		}
		if s.Timeout < 0 {
			return fmt.Errorf("config: service %q: negative timeout", s.Name)
		}
		if s.MaxResponseBytes < 0 {
			return fmt.Errorf("config: service %q: negative maxResponseBytes", s.Name)
		}
	}
	if c.Extensions != "" && c.ExtensionsFile != "" {
		return errors.New("config: set either extensions or extensionsFile, not both")
	}
	for i, b := range c.Bindings {
		where := fmt.Sprintf("bindings[%d]", i)
		if b.Type != "" && b.Field != "" {
			where = b.Type + "." + b.Field
		}
		switch {
		case b.Type == "" || b.Field == "":
			return fmt.Errorf("config: %s: type and field are required", where)
		case b.Operation == "":
			return fmt.Errorf("config: %s: operation is required", where)
		case !names[b.Service]:
			return fmt.Errorf("config: %s: unknown service %q", where, b.Service)
		}
		if _, err := b.fragment(); err != nil {
			return fmt.Errorf("config: %s: %w", where, err)
		}
	}
	if c.Introspection.Retries < 0 || c.Introspection.MaxElapsed < 0 {
		return errors.New("config: introspection retry policy must not be negative")
	}
	if c.Delegation.MaxConcurrency < 0 {
		return errors.New("config: delegation.maxConcurrency must not be negative")
	}
	return nil
}

func (b Binding) fragment() (stitch.Fragment, error) {
	frag, err := stitch.ParseFragment(b.Fragment)
	if err != nil {
		return stitch.Fragment{}, err
	}
	if frag.On != "" && frag.On != b.Type {
		return stitch.Fragment{}, fmt.Errorf("fragment is on %s, not %s", frag.On, b.Type)
	}
	return frag, nil
}

// BindingSet converts the configured bindings for stitch.Build.
func (c *Config) BindingSet() (stitch.BindingSet, error) {
	out := make(stitch.BindingSet, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		frag, err := b.fragment()
		if err != nil {
			return nil, fmt.Errorf("config: %s.%s: %w", b.Type, b.Field, err)
		}
		spec := stitch.BindingSpec{
			Type:      b.Type,
			Field:     b.Field,
			Service:   b.Service,
			Fragment:  frag.Fields,
			Operation: b.Operation,
		}
		if len(b.Arguments) > 0 {
			spec.ArgumentMap = maps.Clone(stitch.ArgumentMap(b.Arguments))
		}
		out = append(out, spec)
	}
	return out, nil
}

// Service returns the service named name, or nil.
func (c *Config) Service(name string) *Service {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}
