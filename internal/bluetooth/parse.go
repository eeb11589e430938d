package bluetooth

import (
	"log"
	"strconv"
	"strings"
)

// parseDeviceList parses `bluetoothctl devices` output. Each valid line looks
// like "Device AA:BB:CC:DD:EE:FF Some Name"; anything else is dropped.
func parseDeviceList(output string) []Device {
	var devices []Device
	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "Device ") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 3 {
			log.Printf("[BLUETOOTH] Dropping malformed device row: %q", line)
			continue
		}

		mac := parts[1]
		if !validMAC(mac) {
			log.Printf("[BLUETOOTH] Dropping row with bad MAC: %q", line)
			continue
		}
		if seen[mac] {
			continue
		}
		seen[mac] = true

		devices = append(devices, Device{
			MAC:  mac,
			Name: strings.Join(parts[2:], " "),
		})
	}

	return devices
}

func validMAC(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return false
	}
	for _, p := range parts {
		if len(p) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(p, 16, 8); err != nil {
			return false
		}
	}
	return true
}

// deviceInfo holds the per-device attributes read from `bluetoothctl info`.
type deviceInfo struct {
	Paired    bool
	Connected bool
	Trusted   bool
	Battery   int // -1 when not reported
	RSSI      int // 0 when not reported
}

// parseDeviceInfo parses `bluetoothctl info <mac>` key/value lines. Unknown
// keys are ignored; a malformed value loses that one field, not the record.
func parseDeviceInfo(output string) deviceInfo {
	info := deviceInfo{Battery: -1}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Paired":
			info.Paired = value == "yes"
		case "Connected":
			info.Connected = value == "yes"
		case "Trusted":
			info.Trusted = value == "yes"
		case "RSSI":
			if v, err := strconv.Atoi(value); err == nil {
				info.RSSI = v
			}
		case "Battery Percentage":
			// Formatted as "0x64 (100)"; the decimal is in parentheses.
			if open := strings.Index(value, "("); open >= 0 {
				if end := strings.Index(value, ")"); end > open {
					if v, err := strconv.Atoi(value[open+1 : end]); err == nil {
						info.Battery = v
					}
				}
			}
		}
	}

	return info
}
