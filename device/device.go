// Package device models Modbus RTU devices found on a bus: their
// identity, cached register and coil values, and capability facets.
package device

import (
	"fmt"
	"strconv"
	"strings"

	rtu "github.com/bangzek/rtu-discovery"
)

const Unknown = "Unknown"

// Kind is the broad family a device belongs to.
type Kind byte

const (
	Generic Kind = iota
	VFDKind
	Sensor
)

func (k Kind) String() string {
	switch k {
	case Generic:
		return "Generic"
	case VFDKind:
		return "VFD"
	case Sensor:
		return "Sensor"
	default:
		return "ERR:" + strconv.Itoa(int(k))
	}
}

// Capability is a set of facets a device carries.
type Capability uint8

const (
	CapVFD Capability = 1 << iota
	CapTemperature
	CapHumidity
)

func (c Capability) Has(x Capability) bool {
	return c&x == x
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var s []string
	if c.Has(CapVFD) {
		s = append(s, "VFD")
	}
	if c.Has(CapTemperature) {
		s = append(s, "Temperature")
	}
	if c.Has(CapHumidity) {
		s = append(s, "Humidity")
	}
	return strings.Join(s, "|")
}

// StatusContributor is implemented by every facet.
type StatusContributor interface {
	Status() string
}

type VFD struct {
	Voltage int
	Phases  int
	// Power in kW.
	Power float64
}

func (v *VFD) Status() string {
	return fmt.Sprintf("VFD at %dV %d phase %gkW", v.Voltage, v.Phases, v.Power)
}

type Temperature struct {
	Celsius float64
}

func (t *Temperature) Status() string {
	return fmt.Sprintf("Temperature Sensor at %g°C", t.Celsius)
}

type Humidity struct {
	Percent float64
}

func (h *Humidity) Status() string {
	return fmt.Sprintf("Humidity Sensor at %g%% humidity", h.Percent)
}

// Device is one slave on the bus. Regs and Coils cache the last values
// confirmed by the device.
type Device struct {
	Address         byte
	Manufacturer    string
	Model           string
	DiscoveryStatus string

	Regs  map[uint16]uint16
	Coils map[uint16]bool
	Defs  *Definitions

	VFD         *VFD
	Temperature *Temperature
	Humidity    *Humidity
}

// New returns an unidentified device at addr, which must be a valid
// unicast address.
func New(addr byte) *Device {
	if addr < rtu.MinDevAddr || addr > rtu.MaxDevAddr {
		panic(fmt.Sprintf("invalid device address: %d", addr))
	}
	return &Device{
		Address:      addr,
		Manufacturer: Unknown,
		Model:        Unknown,
		Regs:         make(map[uint16]uint16),
		Coils:        make(map[uint16]bool),
	}
}

func (d *Device) Name() string {
	return d.Manufacturer + " " + d.Model
}

func (d *Device) Capabilities() Capability {
	var c Capability
	if d.VFD != nil {
		c |= CapVFD
	}
	if d.Temperature != nil {
		c |= CapTemperature
	}
	if d.Humidity != nil {
		c |= CapHumidity
	}
	return c
}

func (d *Device) Kind() Kind {
	c := d.Capabilities()
	switch {
	case c.Has(CapVFD):
		return VFDKind
	case c&(CapTemperature|CapHumidity) != 0:
		return Sensor
	default:
		return Generic
	}
}

// Statuses collects the facet statuses, VFD first, then temperature,
// then humidity.
func (d *Device) Statuses() []string {
	var s []string
	for _, c := range d.contributors() {
		s = append(s, c.Status())
	}
	return s
}

func (d *Device) contributors() []StatusContributor {
	var cs []StatusContributor
	if d.VFD != nil {
		cs = append(cs, d.VFD)
	}
	if d.Temperature != nil {
		cs = append(cs, d.Temperature)
	}
	if d.Humidity != nil {
		cs = append(cs, d.Humidity)
	}
	return cs
}

func (d *Device) String() string {
	s := d.Name() + " at address " + strconv.Itoa(int(d.Address))
	if st := d.Statuses(); len(st) > 0 {
		s += ": " + strings.Join(st, ", ")
	}
	return s
}
