package device

import (
	rtu "github.com/bangzek/rtu-discovery"
)

// Requester carries one request to the bus. *rtu.Channel is one.
type Requester interface {
	Request(*rtu.Request) (*rtu.Response, error)
}

func do(r Requester, req *rtu.Request) (*rtu.Response, error) {
	res, err := r.Request(req)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ReadRegs reads count registers from start and caches them.
// The cache is left alone on any failure.
func (d *Device) ReadRegs(
	r Requester, kind rtu.RegKind, start, count uint16,
) ([]uint16, error) {
	res, err := do(r, rtu.NewReadRegsRequest(d.Address, kind, start, count))
	if err != nil {
		return nil, err
	}
	regs := res.Regs()
	for i, v := range regs {
		d.Regs[start+uint16(i)] = v
	}
	return regs, nil
}

func (d *Device) WriteReg(r Requester, addr uint16, v uint16) error {
	if _, err := do(r, rtu.NewWriteRegRequest(d.Address, addr, v)); err != nil {
		return err
	}
	d.Regs[addr] = v
	return nil
}

func (d *Device) WriteRegs(r Requester, start uint16, values []uint16) error {
	_, err := do(r, rtu.NewWriteRegsRequest(d.Address, start, values))
	if err != nil {
		return err
	}
	for i, v := range values {
		d.Regs[start+uint16(i)] = v
	}
	return nil
}

func (d *Device) ReadCoils(r Requester, start, count uint16) ([]bool, error) {
	res, err := do(r, rtu.NewReadCoilsRequest(d.Address, start, count))
	if err != nil {
		return nil, err
	}
	coils := res.Coils()
	for i, v := range coils {
		d.Coils[start+uint16(i)] = v
	}
	return coils, nil
}

func (d *Device) WriteCoil(r Requester, addr uint16, on bool) error {
	if _, err := do(r, rtu.NewWriteCoilRequest(d.Address, addr, on)); err != nil {
		return err
	}
	d.Coils[addr] = on
	return nil
}
