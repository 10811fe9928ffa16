// Package lookup resolves NMEA 2000 manufacturer and device class/function
// codes to names.
//
// Tables are built once at startup from the embedded definitions, optionally
// extended by a YAML file with the same layout, and are read-only afterwards.
package lookup

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Unknown is the label returned for codes without a definition.
const Unknown = "unknown"

// Code limits imposed by the NAME layout.
const (
	maxManufacturerCode = 1<<11 - 1
	maxClassCode        = 1<<7 - 1
)

// ErrInvalidDefinitions is returned when a definitions document cannot be used.
var ErrInvalidDefinitions = errors.New("lookup: invalid definitions")

//go:embed definitions.yaml
var builtin []byte

// Manufacturer is one manufacturer definition.
type Manufacturer struct {
	Code uint16 `yaml:"code"`
	Name string `yaml:"name"`
}

// Function is one device function definition within a class.
type Function struct {
	Code uint8  `yaml:"code"`
	Name string `yaml:"name"`
}

// Class is one device class definition with its functions.
type Class struct {
	Code      uint8      `yaml:"code"`
	Name      string     `yaml:"name"`
	Functions []Function `yaml:"functions"`
}

// Definitions is the on-disk layout of a definitions file.
type Definitions struct {
	Manufacturers []Manufacturer `yaml:"manufacturers"`
	Classes       []Class        `yaml:"classes"`
}

// Parse decodes and validates a definitions document.
func Parse(data []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinitions, err)
	}
	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Validate checks every entry has a name and a code that fits the NAME field.
func (d *Definitions) Validate() error {
	var errs []error
	for i, m := range d.Manufacturers {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("manufacturer %d (code %d) has no name", i, m.Code))
		}
		if m.Code > maxManufacturerCode {
			errs = append(errs, fmt.Errorf("manufacturer %q code %d exceeds %d", m.Name, m.Code, maxManufacturerCode))
		}
	}
	for i, c := range d.Classes {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("class %d (code %d) has no name", i, c.Code))
		}
		if c.Code > maxClassCode {
			errs = append(errs, fmt.Errorf("class %q code %d exceeds %d", c.Name, c.Code, maxClassCode))
		}
		for _, f := range c.Functions {
			if f.Name == "" {
				errs = append(errs, fmt.Errorf("class %q function %d has no name", c.Name, f.Code))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDefinitions, errors.Join(errs...))
	}
	return nil
}

// Manufacturers resolves manufacturer codes.
type Manufacturers struct {
	byCode map[uint16]string
}

// Resolve returns the manufacturer name, or Unknown.
func (m *Manufacturers) Resolve(code uint16) string {
	if name, ok := m.byCode[code]; ok {
		return name
	}
	return Unknown
}

// Describe formats code with its name: "137 (Maretron)".
func (m *Manufacturers) Describe(code uint16) string {
	return describe(int(code), m.Resolve(code))
}

// Len returns the number of known manufacturers.
func (m *Manufacturers) Len() int { return len(m.byCode) }

type classEntry struct {
	name      string
	functions map[uint8]string
}

// Classes resolves device class and function codes. Function codes are only
// meaningful within their class.
type Classes struct {
	byCode map[uint8]classEntry
}

// Resolve returns the class name, or Unknown.
func (c *Classes) Resolve(class uint8) string {
	if entry, ok := c.byCode[class]; ok {
		return entry.name
	}
	return Unknown
}

// ResolveFunction returns the function name within class, or Unknown.
func (c *Classes) ResolveFunction(class, function uint8) string {
	if entry, ok := c.byCode[class]; ok {
		if name, ok := entry.functions[function]; ok {
			return name
		}
	}
	return Unknown
}

// Describe formats class with its name: "60 (Navigation)".
func (c *Classes) Describe(class uint8) string {
	return describe(int(class), c.Resolve(class))
}

// DescribeFunction formats function with its name: "130 (Bottom Depth)".
func (c *Classes) DescribeFunction(class, function uint8) string {
	return describe(int(function), c.ResolveFunction(class, function))
}

// Len returns the number of known classes.
func (c *Classes) Len() int { return len(c.byCode) }

func describe(code int, label string) string {
	return strconv.Itoa(code) + " (" + label + ")"
}

// Tables bundles the resolvers. It satisfies device.Labeler with the
// "code (name)" formatting.
type Tables struct {
	Manufacturers *Manufacturers
	Classes       *Classes
}

// Manufacturer labels a manufacturer code.
func (t *Tables) Manufacturer(code uint16) string { return t.Manufacturers.Describe(code) }

// Class labels a device class code.
func (t *Tables) Class(class uint8) string { return t.Classes.Describe(class) }

// Function labels a device function code.
func (t *Tables) Function(class, function uint8) string {
	return t.Classes.DescribeFunction(class, function)
}

// Default builds the tables from the embedded definitions.
func Default() (*Tables, error) {
	defs, err := Parse(builtin)
	if err != nil {
		return nil, fmt.Errorf("builtin definitions: %w", err)
	}
	return New(defs), nil
}

// Load builds the tables from the embedded definitions extended by the file
// at path. An empty path loads the embedded definitions only.
func Load(path string) (*Tables, error) {
	base, err := Parse(builtin)
	if err != nil {
		return nil, fmt.Errorf("builtin definitions: %w", err)
	}
	if path == "" {
		return New(base), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("reading definitions file: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("definitions file %s: %w", path, err)
	}
	return New(base, extra), nil
}

// New builds tables from one or more definition sets. Within a set the first
// entry for a code wins; a later set replaces entries of earlier ones.
func New(sets ...*Definitions) *Tables {
	t := &Tables{
		Manufacturers: &Manufacturers{byCode: make(map[uint16]string)},
		Classes:       &Classes{byCode: make(map[uint8]classEntry)},
	}

	for _, defs := range sets {
		seenManufacturers := make(map[uint16]bool)
		for _, m := range defs.Manufacturers {
			if seenManufacturers[m.Code] {
				continue
			}
			seenManufacturers[m.Code] = true
			t.Manufacturers.byCode[m.Code] = m.Name
		}

		seenClasses := make(map[uint8]bool)
		for _, c := range defs.Classes {
			if seenClasses[c.Code] {
				continue
			}
			seenClasses[c.Code] = true

			entry := classEntry{name: c.Name, functions: make(map[uint8]string, len(c.Functions))}
			for _, f := range c.Functions {
				if _, dup := entry.functions[f.Code]; !dup {
					entry.functions[f.Code] = f.Name
				}
			}
			t.Classes.byCode[c.Code] = entry
		}
	}
	return t
}
