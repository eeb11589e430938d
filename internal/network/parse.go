package network

import (
	"log"
	"strconv"
	"strings"
)

// splitFields splits one line of `nmcli -t` terse output on unescaped colons.
// nmcli escapes ':' and '\' inside values with a backslash.
func splitFields(line string) []string {
	var fields []string
	var current strings.Builder
	escaped := false

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, current.String())

	return fields
}

// parseWifiList parses `nmcli -t -f IN-USE,SSID,SIGNAL,SECURITY device wifi list`
// output. Field order is a hard contract with nmcli. Malformed rows are
// dropped individually; the rest of the scan survives.
func parseWifiList(output string) []Network {
	var networks []Network
	seen := make(map[string]int)

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := splitFields(line)
		if len(fields) < 4 {
			log.Printf("[NETWORK] Dropping malformed scan row: %q", line)
			continue
		}

		inUse := strings.TrimSpace(fields[0]) == "*"
		ssid := fields[1]
		signalStr := strings.TrimSpace(fields[2])
		security := strings.TrimSpace(fields[3])

		if ssid == "" {
			// Hidden network, nothing to key on.
			continue
		}

		sig, err := strconv.Atoi(signalStr)
		if err != nil {
			log.Printf("[NETWORK] Dropping row with non-numeric signal %q for SSID %q", signalStr, ssid)
			continue
		}

		n := Network{
			SSID:    ssid,
			Signal:  sig,
			Secured: security != "" && security != "--",
			InUse:   inUse,
		}

		// SSIDs must be unique within a snapshot; keep the strongest BSS.
		if idx, ok := seen[ssid]; ok {
			if n.Signal > networks[idx].Signal || n.InUse {
				n.Saved = networks[idx].Saved
				networks[idx] = n
			}
			continue
		}

		seen[ssid] = len(networks)
		networks = append(networks, n)
	}

	return networks
}

// parseSavedProfiles parses `nmcli -t -f NAME connection show` output into a
// set of saved connection names.
func parseSavedProfiles(output string) map[string]bool {
	saved := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		fields := splitFields(name)
		saved[fields[0]] = true
	}
	return saved
}
