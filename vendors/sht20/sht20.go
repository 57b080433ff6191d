// Package sht20 reads SHT20 temperature and humidity transmitters.
package sht20

import (
	rtu "github.com/bangzek/rtu-discovery"
	"github.com/bangzek/rtu-discovery/device"
	"github.com/bangzek/rtu-discovery/discovery"
)

const (
	Manufacturer = "Tronix Lab"
	ModelName    = "SHT20"
	Status       = "Device-specific register read successful"

	TemperatureReg uint16 = 0x0001
	HumidityReg    uint16 = 0x0002
)

type Reading struct {
	Temperature float64
	Humidity    float64
}

// Decode converts the two input registers, in tenths, into a reading.
// Temperature is signed.
func Decode(regs []uint16) Reading {
	return Reading{
		Temperature: float64(int16(regs[0])) / 10,
		Humidity:    float64(regs[1]) / 10,
	}
}

// Probe reads the measurement registers. With OnlyFound it only asks
// addresses that earlier probes found.
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
		d.Manufacturer = Manufacturer
		d.Model = ModelName
		d.Defs = &device.Definitions{Registers: Registers}
		if err := Refresh(bus, d); err != nil {
			return nil, err
		}
		d.DiscoveryStatus = Status
		return d, nil
	})
}

// Refresh reads the current measurement into the facets of d.
func Refresh(r device.Requester, d *device.Device) error {
	regs, err := d.ReadRegs(r, rtu.InputRegs, TemperatureReg, 2)
	if err != nil {
		return err
	}
	v := Decode(regs)
	d.Temperature = &device.Temperature{Celsius: v.Temperature}
	d.Humidity = &device.Humidity{Percent: v.Humidity}
	return nil
}
