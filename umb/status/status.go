// Package status translates UMB device status codes into the wording of the
// device manual. Code 0 is success; everything else tells why the device
// could not serve a request or a channel. Frame decoding never consults this
// table, it exists for logs and operator output.
package status

import "fmt"

const OK byte = 0

// Manual wording is preserved verbatim so log lines match vendor docs.
var messages = map[byte]string{
	0:  "Command successful; no error; all OK",
	16: "Unknown command; not supported by this device",
	17: "Invalid parameter",
	18: "Invalid header version",
	19: "Invalid version of the command",
	20: "Invalid password for command",
	32: "Read error",
	33: "Write errorr", // sic
	34: "Length too great; max. permissible length is designated in <maxlength>",
	35: "Invalid address / storage location",
	36: "Invalid channel",
	37: "Command not possible in this mode",
	38: "Unknown calibration command",
	39: "Calibration error",
	40: "Device not ready; e.g. initialization / calibrationrunning", // sic
	41: "Under-voltage",
	42: "Hardware error",
	43: "Measurement error",
	44: "Error on device initialization",
	45: "Error in operating system",
	48: "Configuration error, default configuration was loaded",
	49: "Calibration error / the calibration is invalid, measurement not possible",
	50: "CRC error on loading configuration; defaultconfiguration was loaded", // sic
	51: "CRC error on loading calibration; measurement not possible",
	52: "Calibration Step 1",
	53: "Calibration OK",
	54: "Channel deactivated",
}

// Message returns the manual text for a device status code.
func Message(code byte) string {
	if s, ok := messages[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown status code %d", code)
}
