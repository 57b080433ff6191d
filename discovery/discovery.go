// Package discovery finds the devices present on a bus by running a
// list of probes over a range of addresses.
package discovery

import (
	"errors"
	"fmt"

	rtu "github.com/bangzek/rtu-discovery"
	"github.com/bangzek/rtu-discovery/device"
)

const EchoStatus = "RTU Echo Test Passed"

// Bus carries requests and takes discovery reports. *rtu.Channel is one.
type Bus interface {
	device.Requester
	Debugf(string, ...any)
	Errorf(string, ...any)
}

// Params is the address range to sweep: Count addresses from Start.
type Params struct {
	Start byte
	Count int
}

func (p Params) check() {
	if p.Start < rtu.MinDevAddr || p.Start > rtu.MaxDevAddr {
		panic(fmt.Sprintf("invalid start address: %d", p.Start))
	}
	if p.Count < 0 {
		panic(fmt.Sprintf("negative count: %d", p.Count))
	}
	if int(p.Start)+p.Count-1 > rtu.MaxDevAddr {
		panic(fmt.Sprintf("address overflow: %d, %d", p.Start, p.Count))
	}
}

// Addrs lists the addresses in the range, in order.
func (p Params) Addrs() []byte {
	p.check()
	addrs := make([]byte, p.Count)
	for i := range addrs {
		addrs[i] = p.Start + byte(i)
	}
	return addrs
}

// Probe finds devices of one kind. found holds what the probes before
// it have found so far.
type Probe interface {
	Probe(bus Bus, p Params, found []*device.Device) []*device.Device
}

type ProbeFunc func(bus Bus, p Params, found []*device.Device) []*device.Device

func (f ProbeFunc) Probe(
	bus Bus, p Params, found []*device.Device,
) []*device.Device {
	return f(bus, p, found)
}

// Dedup reduces a device list.
type Dedup func([]*device.Device) []*device.Device

// Loader supplies register definitions for a device model.
type Loader interface {
	Load(manufacturer, model string) (*device.Definitions, error)
}

type Options struct {
	Probes []Probe
	Dedups []Dedup
	Loader Loader
}

// Discover runs every probe over p in order, then reduces the result
// with the dedups and attaches definitions from the loader.
func Discover(bus Bus, p Params, opts Options) []*device.Device {
	p.check()
	var devs []*device.Device
	for _, probe := range opts.Probes {
		devs = append(devs, probe.Probe(bus, p, devs)...)
	}
	for _, dedup := range opts.Dedups {
		devs = dedup(devs)
	}
	if opts.Loader != nil {
		for _, d := range devs {
			defs, err := opts.Loader.Load(d.Manufacturer, d.Model)
			if err != nil {
				bus.Debugf("No definitions for %s at address %d: %s",
					d.Name(), d.Address, err)
				continue
			}
			d.Defs = defs
		}
	}
	return devs
}

// Sweep calls try for every address in turn. A timeout means nothing
// answered and is skipped silently; other failures are reported and
// skipped too. try may return a nil device to skip without a report.
func Sweep(
	bus Bus, addrs []byte, try func(addr byte) (*device.Device, error),
) []*device.Device {
	var devs []*device.Device
	for _, addr := range addrs {
		d, err := try(addr)
		if err != nil {
			report(bus, addr, err)
			continue
		}
		if d != nil {
			devs = append(devs, d)
		}
	}
	return devs
}

func report(bus Bus, addr byte, err error) {
	var bad *rtu.BadRxErr
	switch {
	case rtu.IsTimeout(err):
	case errors.As(err, &bad):
		bus.Debugf("Invalid response from device at address %d: %s",
			addr, err)
	default:
		bus.Errorf("Error during discovery at address %d: %s", addr, err)
	}
}

// Echo finds any device that answers the echo test.
var Echo Probe = ProbeFunc(echo)

func echo(bus Bus, p Params, _ []*device.Device) []*device.Device {
	return Sweep(bus, p.Addrs(), func(addr byte) (*device.Device, error) {
		res, err := bus.Request(rtu.NewEchoTestRequest(addr))
		if err != nil {
			return nil, err
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		d := device.New(addr)
		d.DiscoveryStatus = EchoStatus
		return d, nil
	})
}

// FoundAddrs lists the distinct addresses of found, in order.
func FoundAddrs(found []*device.Device) []byte {
	var seen [256]bool
	var addrs []byte
	for _, d := range found {
		if !seen[d.Address] {
			seen[d.Address] = true
			addrs = append(addrs, d.Address)
		}
	}
	return addrs
}

// ByAddress keeps one device per address: the last one found wins, and
// the addresses stay in the order they were first found.
func ByAddress(devs []*device.Device) []*device.Device {
	var last [256]int
	for i, d := range devs {
		last[d.Address] = i + 1
	}
	var out []*device.Device
	for _, addr := range FoundAddrs(devs) {
		out = append(out, devs[last[addr]-1])
	}
	return out
}
