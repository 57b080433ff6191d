// Package shihlin identifies Shihlin SL3 inverters.
package shihlin

import (
	"fmt"

	rtu "github.com/bangzek/rtu-discovery"
	"github.com/bangzek/rtu-discovery/device"
	"github.com/bangzek/rtu-discovery/discovery"
)

const (
	Manufacturer = "Shihlin"
	ModelName    = "SL3"
	Status       = "Device-specific register read successful"

	ModelReg uint16 = 10000
)

// Model is the rating encoded in the inverter model register.
type Model struct {
	Voltage int
	Phases  int
	// Power in kW.
	Power float64
}

func (m Model) String() string {
	return fmt.Sprintf("%dV %dph %gkW", m.Voltage, m.Phases, m.Power)
}

// DecodeModel splits the model word into its supply code (hundreds) and
// power code (the rest). Unknown codes decode as zero.
func DecodeModel(w uint16) Model {
	var m Model
	switch w / 100 {
	case 1:
		m.Voltage, m.Phases = 220, 1
	case 2:
		m.Voltage, m.Phases = 440, 3
	}
	switch w % 100 {
	case 2:
		m.Power = 0.4
	case 3:
		m.Power = 0.75
	case 4:
		m.Power = 1.5
	case 5:
		m.Power = 2.2
	}
	return m
}

// Probe reads the model register. With OnlyFound it only asks addresses
// that earlier probes found.
type Probe struct {
	OnlyFound bool
}

func (p Probe) Probe(
	bus discovery.Bus, params discovery.Params, found []*device.Device,
) []*device.Device {
	addrs := params.Addrs()
	if p.OnlyFound {
		addrs = discovery.FoundAddrs(found)
	}
	return discovery.Sweep(bus, addrs, func(addr byte) (*device.Device, error) {
		d := device.New(addr)
		regs, err := d.ReadRegs(bus, rtu.HoldingRegs, ModelReg, 1)
		if err != nil {
			return nil, err
		}
		Identify(d, regs[0])
		return d, nil
	})
}

// Identify marks d as an SL3 of the given model word.
func Identify(d *device.Device, model uint16) {
	m := DecodeModel(model)
	d.Manufacturer = Manufacturer
	d.Model = ModelName
	d.DiscoveryStatus = Status
	d.VFD = &device.VFD{Voltage: m.Voltage, Phases: m.Phases, Power: m.Power}
	d.Defs = &device.Definitions{Registers: Registers}
}
