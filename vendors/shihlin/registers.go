package shihlin

import (
	"strconv"

	"github.com/bangzek/rtu-discovery/device"
)

func unit(u string) func([]uint16) string {
	return func(v []uint16) string {
		return strconv.Itoa(int(v[0])) + u
	}
}

var inputTerminal = map[int]string{
	0:  "Forward Run",
	1:  "Reverse Run",
	7:  "Emergency Stop",
	28: "Run (Inverter runs forward)",
	29: "Forward / Reverse (use with Run signal, on = reverse)",
	30: "External Reset",
	31: "Stop (3-wire control with Forward / Reverse Run)",
	41: "PWM Set Frequency",
}

var outputTerminal = map[int]string{
	0:  "Inverter Running",
	1:  "Target Frequency Reached",
	2:  "Frequency Detection Triggered",
	3:  "Overload",
	4:  "Output Current Zero",
	5:  "Alarm",
	12: "Overtorque",
	17: "Inverter on, No Alarm",
}

// Registers is the SL3 parameter map.
var Registers = device.Catalog{
	10000: {
		Name:        "Inverter Model",
		Access:      device.ReadOnly,
		Description: "Model number of the inverter",
		Decode: func(v []uint16) string {
			return DecodeModel(v[0]).String()
		},
	},
	10001: {
		Name:        "Firmware Version",
		Access:      device.ReadOnly,
		Description: "Firmware version of the inverter",
		Decode: func(v []uint16) string {
			return "0." + strconv.Itoa(int(v[0]))
		},
	},
	10002: {
		Name:        "Parameter Restore",
		Access:      device.ReadWrite,
		Description: "Restore the inverter parameters to factory defaults",
		Labels: map[int]string{
			0: "Off",
			1: "Clear Alarm History (P.996=1)",
			2: "Reset Inverter (P.997=1)",
			3: "Restore all parameters to default (P.998=1)",
			4: "Restore some parameters to default 1 (P.999=1)",
			5: "Restore some parameters to default 2 (P.999=2)",
			6: "Restore some parameters to default 3 (P.999=3)",
		},
	},
	10011: {
		Name:        "Carrier Frequency",
		Access:      device.ReadWrite,
		Description: "Carrier frequency in kHz",
		Decode:      unit("kHz"),
	},
	10013: {
		Name:        "Braking Function",
		Access:      device.ReadWrite,
		Description: "Behaviour of the braking function",
		Labels: map[int]string{
			0: "Idling Brake",
			1: "DC Injection Brake",
		},
	},
	10015: {
		Name:        "Prevent Rotation Direction Selection",
		Access:      device.ReadWrite,
		Description: "Prevent forward / reverse rotation selection",
		Labels: map[int]string{
			0: "Allow Forward / Reverse",
			1: "Prevent Reverse",
			2: "Prevent Forward",
		},
	},
	10016: {
		Name:        "Operation Mode Selection",
		Access:      device.ReadWrite,
		Description: "Select the operation mode",
		Labels: map[int]string{
			0: "PU / External / Jog selectable by Keypad",
			1: "PU / Jog selectable by Keypad",
			2: "External mode only",
			3: "Communication (RS485) mode only",
		},
	},
	10017: {
		Name:        "Frequency Reference Selection",
		Access:      device.ReadWrite,
		Description: "Select the frequency reference",
		Labels: map[int]string{
			0: "Keypad",
			1: "Communication (RS485)",
			2: "External Analog Terminal",
		},
	},
	10019: {
		Name:        "Communication Mode Selection",
		Access:      device.ReadWrite,
		Description: "Select the communication mode",
		Labels: map[int]string{
			0: "Frequency and Run Signal given over RS485",
			1: "Frequency and Run Signal given over external terminals",
		},
	},
	10021: {
		Name:        "Motor Control Mode Selection",
		Access:      device.ReadOnly,
		Description: "Select the motor control mode",
		Labels:      map[int]string{0: "Induction Motor V/F Control"},
	},
	10025: {
		Name:        "Parameter Display Mode Selection",
		Access:      device.ReadWrite,
		Description: "Select the parameter display mode",
		Labels: map[int]string{
			0: "Group Mode (nn-nn)",
			1: "Parameter Mode (P.nnn)",
		},
	},
	10100: {
		Name:        "Maximum Frequency",
		Access:      device.ReadWrite,
		Description: "Maximum output frequency in Hz",
		Decode:      unit("Hz"),
	},
	10101: {
		Name:        "Minimum Frequency",
		Access:      device.ReadWrite,
		Description: "Minimum output frequency in Hz",
		Decode:      unit("Hz"),
	},
	10102: {
		Name:        "High-Speed Maximum Frequency",
		Access:      device.ReadWrite,
		Description: "Maximum high-speed output frequency in Hz",
		Decode:      unit("Hz"),
	},
	10103: {
		Name:        "Base Frequency",
		Access:      device.ReadWrite,
		Description: "Base frequency in Hz",
		Decode:      unit("Hz"),
	},
	10104: {
		Name:        "Base Voltage",
		Access:      device.ReadWrite,
		Description: "Base voltage in V",
		Decode:      unit("V"),
	},
	10105: {
		Name:        "Acceleration Curve Selection",
		Access:      device.ReadWrite,
		Description: "Select the acceleration / deceleration curve",
		Labels: map[int]string{
			0: "Linear",
			1: "S-Curve 1",
			2: "S-Curve 2",
			3: "S-Curve 3",
		},
	},
	10106: {
		Name:        "Acceleration Time",
		Access:      device.ReadWrite,
		Description: "Acceleration time",
	},
	10107: {
		Name:        "Deceleration Time",
		Access:      device.ReadWrite,
		Description: "Deceleration time",
	},
	10108: {
		Name:        "Acceleration / Deceleration Time Increment",
		Access:      device.ReadWrite,
		Description: "Acceleration / Deceleration time increment",
		Labels: map[int]string{
			0: "0.01s",
			1: "0.1s",
		},
	},
	10109: {
		Name:        "Acceleration / Deceleration Reference Frequency",
		Access:      device.ReadWrite,
		Description: "Acceleration and deceleration from this speed take the set times",
		Decode:      unit("Hz"),
	},
	10111: {
		Name:        "Starting Frequency",
		Access:      device.ReadWrite,
		Description: "Starting frequency in Hz",
		Decode:      unit("Hz"),
	},
	10112: {
		Name:        "Load Pattern Selection",
		Access:      device.ReadWrite,
		Description: "Select the load pattern",
		Labels: map[int]string{
			0: "Constant Torque",
			1: "Variable Torque",
			2: "Lifting 1",
			3: "Lifting 2",
		},
	},
	10220: {
		Name:        "Analog Input Signal Range Selection",
		Access:      device.ReadWrite,
		Description: "Select the analog input signal range",
		Labels: map[int]string{
			0: "4-20mA",
			1: "0-10V",
			2: "0-5V",
		},
	},
	10221: {
		Name:        "Maximum Operation Frequency (Jog dial / Analog Input)",
		Access:      device.ReadWrite,
		Description: "Maximum operation frequency in Hz from the jog dial or analog input",
		Decode:      unit("Hz"),
	},
	10300: {
		Name:        "Terminal STF Input Function Selection",
		Access:      device.ReadWrite,
		Description: "Select the function of the STF external terminal",
		Labels:      inputTerminal,
	},
	10301: {
		Name:        "Terminal STR Input Function Selection",
		Access:      device.ReadWrite,
		Description: "Select the function of the STR external terminal",
		Labels:      inputTerminal,
	},
	10303: {
		Name:        "Terminal M0 Input Function Selection",
		Access:      device.ReadWrite,
		Description: "Select the function of the M0 external terminal",
		Labels:      inputTerminal,
	},
	10304: {
		Name:        "Terminal M1 Input Function Selection",
		Access:      device.ReadWrite,
		Description: "Select the function of the M1 external terminal",
		Labels:      inputTerminal,
	},
	10311: {
		Name:        "Terminal A-C Output Function Selection",
		Access:      device.ReadWrite,
		Description: "Select the function of the A-C output terminal",
		Labels:      outputTerminal,
	},
	10314: {
		Name:        "Digital Input Logic",
		Access:      device.ReadWrite,
		Description: "Set the logic of the digital inputs",
		Labels: map[int]string{
			0:  "All Terminals Positive Logic",
			15: "All Terminals Negative Logic (CAUTION)",
		},
	},
	10315: {
		Name:        "Digital Output Logic",
		Access:      device.ReadWrite,
		Description: "Set the logic of the digital outputs",
		Labels: map[int]string{
			0: "Output Terminal Positive Logic",
			2: "Output Terminal Negative Logic",
		},
	},
}
