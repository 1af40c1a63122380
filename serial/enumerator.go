package serial

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// FindDevices returns all serial ports whose USB descriptor matches the
// MAKCU VID/PID. Ordering follows the OS enumeration order, which is stable
// across calls on every supported platform.
func FindDevices() []DeviceInfo {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil
	}

	var devices []DeviceInfo
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		if !strings.EqualFold(port.VID, "1A86") || !strings.EqualFold(port.PID, "55D3") {
			continue
		}
		desc := port.Product
		if desc == "" {
			desc = DescriptionCH343
		}
		devices = append(devices, DeviceInfo{
			Port:        port.Name,
			Description: desc,
			VID:         VendorID,
			PID:         ProductID,
		})
	}
	return devices
}

// FindFirstDevice returns the path of the first matching port, or "" if no
// MAKCU device is attached.
func FindFirstDevice() string {
	devices := FindDevices()
	if len(devices) == 0 {
		return ""
	}
	return devices[0].Port
}

// ListPorts returns a list of all available serial ports
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
