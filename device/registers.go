package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUndefined = errors.New("register not defined")
	ErrReadOnly  = errors.New("register is not writable")
)

// AccessKind tells how a register may be used.
type AccessKind byte

const (
	ReadOnly AccessKind = iota
	ReadWrite
	Status
	Control
)

func (a AccessKind) Writable() bool {
	return a == ReadWrite || a == Control
}

func (a AccessKind) String() string {
	switch a {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case Status:
		return "status"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("ERR:%d", byte(a))
	}
}

func (a AccessKind) MarshalText() ([]byte, error) {
	if a > Control {
		return nil, fmt.Errorf("Invalid AccessKind: %d", a)
	}
	return []byte(a.String()), nil
}

func (a *AccessKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ro", "read-only":
		*a = ReadOnly
	case "rw", "read-write":
		*a = ReadWrite
	case "status":
		*a = Status
	case "control":
		*a = Control
	default:
		return fmt.Errorf("Invalid AccessKind from %q", b)
	}
	return nil
}

// RegisterDef describes one register of a device model. Decode and
// Encode are optional; without them values are shown through Labels or
// as decimal and written from decimal text.
type RegisterDef struct {
	Name        string
	Access      AccessKind
	Description string
	Min, Max    *int
	Labels      map[int]string
	Decode      func([]uint16) string
	Encode      func(string) ([]uint16, error)
}

// Catalog maps register addresses to their definitions. Catalogs are
// shared by every device of a model and must not be modified.
type Catalog map[uint16]RegisterDef

type CoilDef struct {
	Name        string
	Description string
}

type Definitions struct {
	Registers Catalog
	Coils     map[uint16]CoilDef
}

// Format renders v the way the register is meant to be read.
func (d *RegisterDef) Format(v uint16) string {
	if d.Decode != nil {
		return d.Decode([]uint16{v})
	}
	if l, ok := d.Labels[int(v)]; ok {
		return l
	}
	return strconv.Itoa(int(v))
}

// Parse turns text into register values. A label name is accepted in
// place of its value.
func (d *RegisterDef) Parse(text string) ([]uint16, error) {
	if d.Encode != nil {
		return d.Encode(text)
	}
	text = strings.TrimSpace(text)
	for v, l := range d.Labels {
		if strings.EqualFold(l, text) {
			return d.check(v)
		}
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid value %q", d.Name, text)
	}
	return d.check(v)
}

func (d *RegisterDef) check(v int) ([]uint16, error) {
	if d.Min != nil && v < *d.Min {
		return nil, fmt.Errorf("%s: %d below minimum %d", d.Name, v, *d.Min)
	}
	if d.Max != nil && v > *d.Max {
		return nil, fmt.Errorf("%s: %d above maximum %d", d.Name, v, *d.Max)
	}
	if v < 0 || v > 0xFFFF {
		return nil, fmt.Errorf("%s: %d out of register range", d.Name, v)
	}
	return []uint16{uint16(v)}, nil
}

// Register returns the definition of addr, if any.
func (d *Device) Register(addr uint16) (RegisterDef, bool) {
	if d.Defs == nil {
		return RegisterDef{}, false
	}
	def, ok := d.Defs.Registers[addr]
	return def, ok
}

// Display renders the cached value of addr through its definition.
// It reports false when the register has never been read.
func (d *Device) Display(addr uint16) (string, bool) {
	v, ok := d.Regs[addr]
	if !ok {
		return "", false
	}
	if def, ok := d.Register(addr); ok {
		return def.Format(v), true
	}
	return strconv.Itoa(int(v)), true
}

// WriteText encodes text through the definition of addr and writes it.
func (d *Device) WriteText(r Requester, addr uint16, text string) error {
	def, ok := d.Register(addr)
	if !ok {
		return fmt.Errorf("%d: %w", addr, ErrUndefined)
	}
	if !def.Access.Writable() {
		return fmt.Errorf("%s: %w", def.Name, ErrReadOnly)
	}
	values, err := def.Parse(text)
	if err != nil {
		return err
	}
	switch len(values) {
	case 0:
		return fmt.Errorf("%s: nothing to write", def.Name)
	case 1:
		return d.WriteReg(r, addr, values[0])
	default:
		return d.WriteRegs(r, addr, values)
	}
}
