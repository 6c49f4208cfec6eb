package conformance

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/scopeharness/scopeharness/framework/ldtest"
)

const (
	defaultClassScopeName = "class"
	defaultTestScopeName  = "test"
	defaultNestingDepth   = 5
	defaultReceiveTimeout = time.Second
)

// Config controls the names and sizes used by the conformance suite. Any field left at its
// zero value takes a default.
type Config struct {
	// AssemblyScopeName is the name of the root scope of each manager that the suite creates.
	AssemblyScopeName string `yaml:"assemblyScopeName"`

	// ClassScopeName and TestScopeName are the names of the second and third levels.
	ClassScopeName string `yaml:"classScopeName"`
	TestScopeName  string `yaml:"testScopeName"`

	// NestingDepth is how many scopes the balanced-depth tests push on top of the root.
	NestingDepth int `yaml:"nestingDepth"`

	// ReceiveTimeout is how long to wait for a cleanup action to report that it ran.
	ReceiveTimeout time.Duration `yaml:"receiveTimeout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.AssemblyScopeName == "" {
		c.AssemblyScopeName = ldtest.DefaultAssemblyScopeName
	}
	if c.ClassScopeName == "" {
		c.ClassScopeName = defaultClassScopeName
	}
	if c.TestScopeName == "" {
		c.TestScopeName = defaultTestScopeName
	}
	if c.NestingDepth == 0 {
		c.NestingDepth = defaultNestingDepth
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = defaultReceiveTimeout
	}
	return c
}

// Validate checks for values that cannot be used even after defaults are applied.
func (c Config) Validate() error {
	var errs []error
	if c.NestingDepth < 0 {
		errs = append(errs, fmt.Errorf("nestingDepth must not be negative, was %d", c.NestingDepth))
	}
	if c.ReceiveTimeout < 0 {
		errs = append(errs, fmt.Errorf("receiveTimeout must not be negative, was %s", c.ReceiveTimeout))
	}
	names := map[string]string{}
	for _, n := range []struct{ field, value string }{
		{"assemblyScopeName", c.AssemblyScopeName},
		{"classScopeName", c.ClassScopeName},
		{"testScopeName", c.TestScopeName},
	} {
		if n.value == "" {
			continue
		}
		if other, ok := names[n.value]; ok {
			errs = append(errs, fmt.Errorf("%s and %s must be different, both were %q", other, n.field, n.value))
		}
		names[n.value] = n.field
	}
	return errors.Join(errs...)
}

// ParseConfig reads a YAML configuration. Unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ReadConfigFile is ParseConfig for the contents of a file.
func ReadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Config{}, fmt.Errorf("cannot read suite configuration: %w", err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid suite configuration in %s: %w", path, err)
	}
	return c, nil
}
