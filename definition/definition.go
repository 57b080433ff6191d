// Package definition loads register and coil definitions of device
// models from YAML:
//
//	devices:
//	  - manufacturer: Tronix Lab
//	    model: SHT20
//	    registers:
//	      0x0001: {name: Temperature, access: status, unit: °C, scale: 0.1, signed: true}
//	      0x0102: {name: Baud Rate, access: rw, labels: {0: "9600", 1: "14400"}}
//	    coils:
//	      0: {name: Relay}
package definition

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bangzek/rtu-discovery/device"
)

var ErrNotFound = errors.New("no definitions")

type File struct {
	Devices []Model `yaml:"devices"`
}

type Model struct {
	Manufacturer string              `yaml:"manufacturer"`
	Model        string              `yaml:"model"`
	Registers    map[uint16]Register `yaml:"registers"`
	Coils        map[uint16]Coil     `yaml:"coils"`
}

type Register struct {
	Name        string            `yaml:"name"`
	Access      device.AccessKind `yaml:"access"`
	Description string            `yaml:"description"`
	Min         *int              `yaml:"min"`
	Max         *int              `yaml:"max"`
	Labels      map[int]string    `yaml:"labels"`
	Unit        string            `yaml:"unit"`
	Scale       float64           `yaml:"scale"`
	// Signed reads the raw value as int16 before scaling.
	Signed bool `yaml:"signed"`
}

type Coil struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Load reads and checks the definition file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := make(map[string]bool)
	for i, m := range f.Devices {
		if m.Manufacturer == "" || m.Model == "" {
			return fmt.Errorf("devices[%d]: manufacturer and model are required", i)
		}
		key := strings.ToLower(m.Manufacturer + "\x00" + m.Model)
		if seen[key] {
			return fmt.Errorf("devices[%d]: %s %s defined twice",
				i, m.Manufacturer, m.Model)
		}
		seen[key] = true

		for addr, r := range m.Registers {
			if r.Name == "" {
				return fmt.Errorf("%s %s: register %d has no name",
					m.Manufacturer, m.Model, addr)
			}
			if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
				return fmt.Errorf("%s %s: %s: min %d above max %d",
					m.Manufacturer, m.Model, r.Name, *r.Min, *r.Max)
			}
		}
		for addr, c := range m.Coils {
			if c.Name == "" {
				return fmt.Errorf("%s %s: coil %d has no name",
					m.Manufacturer, m.Model, addr)
			}
		}
	}
	return nil
}

// Load returns the definitions of a model. Names match case-insensitively.
func (f *File) Load(manufacturer, model string) (*device.Definitions, error) {
	for _, m := range f.Devices {
		if strings.EqualFold(m.Manufacturer, manufacturer) &&
			strings.EqualFold(m.Model, model) {
			return m.Definitions(), nil
		}
	}
	return nil, fmt.Errorf("%s %s: %w", manufacturer, model, ErrNotFound)
}

func (m *Model) Definitions() *device.Definitions {
	defs := &device.Definitions{
		Registers: make(device.Catalog, len(m.Registers)),
	}
	for addr, r := range m.Registers {
		defs.Registers[addr] = r.def()
	}
	if len(m.Coils) > 0 {
		defs.Coils = make(map[uint16]device.CoilDef, len(m.Coils))
		for addr, c := range m.Coils {
			defs.Coils[addr] = device.CoilDef{
				Name:        c.Name,
				Description: c.Description,
			}
		}
	}
	return defs
}

func (r Register) def() device.RegisterDef {
	d := device.RegisterDef{
		Name:        r.Name,
		Access:      r.Access,
		Description: r.Description,
		Min:         r.Min,
		Max:         r.Max,
		Labels:      r.Labels,
	}
	if r.Unit != "" || r.Scale != 0 || r.Signed {
		d.Decode = r.decode
		d.Encode = r.encode
	}
	return d
}

// encode is the inverse of decode. It accepts a label, or a number with
// or without the unit. Min and Max bound the raw register value.
func (r Register) encode(text string) ([]uint16, error) {
	text = strings.TrimSpace(text)
	for v, l := range r.Labels {
		if strings.EqualFold(l, text) {
			return r.raw(v, text)
		}
	}
	f, err := strconv.ParseFloat(
		strings.TrimSpace(strings.TrimSuffix(text, r.Unit)), 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid value %q", r.Name, text)
	}
	if r.Scale != 0 {
		f /= r.Scale
	}
	f = math.Round(f)
	if f < math.MinInt32 || f > math.MaxInt32 {
		return nil, fmt.Errorf("%s: %s out of register range", r.Name, text)
	}
	return r.raw(int(f), text)
}

func (r Register) raw(v int, text string) ([]uint16, error) {
	if r.Min != nil && v < *r.Min {
		return nil, fmt.Errorf("%s: %d below minimum %d", r.Name, v, *r.Min)
	}
	if r.Max != nil && v > *r.Max {
		return nil, fmt.Errorf("%s: %d above maximum %d", r.Name, v, *r.Max)
	}
	lo, hi := 0, 0xFFFF
	if r.Signed {
		lo, hi = -0x8000, 0x7FFF
	}
	if v < lo || v > hi {
		return nil, fmt.Errorf("%s: %s out of register range", r.Name, text)
	}
	return []uint16{uint16(v)}, nil
}

func (r Register) decode(v []uint16) string {
	if l, ok := r.Labels[int(v[0])]; ok {
		return l
	}
	x := float64(v[0])
	if r.Signed {
		x = float64(int16(v[0]))
	}
	prec := 0
	if r.Scale != 0 {
		x *= r.Scale
		prec = decimals(r.Scale)
	}
	return strconv.FormatFloat(x, 'f', prec, 64) + r.Unit
}

// decimals counts the fractional digits of the shortest form of f.
func decimals(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}
