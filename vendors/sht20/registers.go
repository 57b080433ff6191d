package sht20

import (
	"fmt"
	"strconv"

	"github.com/bangzek/rtu-discovery/device"
)

func tenths(unit string) func([]uint16) string {
	return func(v []uint16) string {
		return strconv.FormatFloat(float64(int16(v[0]))/10, 'f', 1, 64) + unit
	}
}

func encodeTenths(s string) ([]uint16, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q", s)
	}
	t := f * 10
	if t < -32768 || t > 32767 {
		return nil, fmt.Errorf("%s out of range", s)
	}
	if t < 0 {
		t -= 0.5
	} else {
		t += 0.5
	}
	return []uint16{uint16(int16(t))}, nil
}

var minAddr, maxAddr = 1, 247

// Registers covers the measurement and configuration registers.
var Registers = device.Catalog{
	TemperatureReg: {
		Name:        "Temperature",
		Access:      device.Status,
		Description: "Temperature in °C",
		Decode:      tenths("°C"),
	},
	HumidityReg: {
		Name:        "Humidity",
		Access:      device.Status,
		Description: "Relative humidity in %",
		Decode:      tenths("%"),
	},
	0x0101: {
		Name:        "Device Address",
		Access:      device.ReadWrite,
		Description: "Modbus address of the sensor",
		Min:         &minAddr,
		Max:         &maxAddr,
	},
	0x0102: {
		Name:        "Baud Rate",
		Access:      device.ReadWrite,
		Description: "Serial line speed",
		Labels: map[int]string{
			0: "9600",
			1: "14400",
			2: "19200",
		},
	},
	0x0103: {
		Name:        "Temperature Correction",
		Access:      device.ReadWrite,
		Description: "Offset added to the temperature in °C",
		Decode:      tenths("°C"),
		Encode:      encodeTenths,
	},
	0x0104: {
		Name:        "Humidity Correction",
		Access:      device.ReadWrite,
		Description: "Offset added to the humidity in %",
		Decode:      tenths("%"),
		Encode:      encodeTenths,
	},
}
