package network

import (
	"testing"
)

func TestSplitFields(t *testing.T) {
	fields := splitFields(`*:my\:net:82:WPA2`)
	if len(fields) != 4 {
		t.Fatalf("Expected 4 fields, got %v", fields)
	}
	if fields[1] != "my:net" {
		t.Errorf("Expected escaped colon preserved, got %q", fields[1])
	}
}

func TestParseWifiList(t *testing.T) {
	output := "*:HomeNet:87:WPA2\n" +
		":CoffeeShop:54:\n" +
		":Office:71:WPA2 WPA3\n"

	networks := parseWifiList(output)
	if len(networks) != 3 {
		t.Fatalf("Expected 3 networks, got %d: %v", len(networks), networks)
	}

	home := networks[0]
	if home.SSID != "HomeNet" || !home.InUse || home.Signal != 87 || !home.Secured {
		t.Errorf("Unexpected HomeNet parse: %+v", home)
	}

	if networks[1].Secured {
		t.Errorf("Open network parsed as secured: %+v", networks[1])
	}
}

// A row with a non-numeric signal is dropped; the remaining rows survive.
func TestParseWifiList_DropsMalformedSignal(t *testing.T) {
	output := "*:HomeNet:87:WPA2\n" +
		":Broken:notanumber:WPA2\n" +
		":Office:71:WPA2\n"

	networks := parseWifiList(output)
	if len(networks) != 2 {
		t.Fatalf("Expected 2 well-formed networks, got %d: %v", len(networks), networks)
	}
	for _, n := range networks {
		if n.SSID == "Broken" {
			t.Error("Malformed row was not dropped")
		}
	}
}

func TestParseWifiList_DropsShortRows(t *testing.T) {
	output := "*:HomeNet:87:WPA2\n" +
		"garbage-line\n" +
		"\n"

	networks := parseWifiList(output)
	if len(networks) != 1 {
		t.Fatalf("Expected 1 network, got %d", len(networks))
	}
}

func TestParseWifiList_DuplicateSSIDKeepsStrongest(t *testing.T) {
	output := ":Mesh:40:WPA2\n" +
		":Mesh:90:WPA2\n" +
		":Mesh:60:WPA2\n"

	networks := parseWifiList(output)
	if len(networks) != 1 {
		t.Fatalf("Expected 1 deduplicated network, got %d", len(networks))
	}
	if networks[0].Signal != 90 {
		t.Errorf("Expected strongest BSS (90), got %d", networks[0].Signal)
	}
}

func TestParseWifiList_SkipsHiddenSSIDs(t *testing.T) {
	output := ":" + ":87:WPA2\n"

	if networks := parseWifiList(output); len(networks) != 0 {
		t.Fatalf("Expected hidden network skipped, got %v", networks)
	}
}

func TestParseSavedProfiles(t *testing.T) {
	saved := parseSavedProfiles("HomeNet\nOffice\n\n")
	if !saved["HomeNet"] || !saved["Office"] {
		t.Errorf("Missing saved profiles: %v", saved)
	}
	if len(saved) != 2 {
		t.Errorf("Expected 2 profiles, got %v", saved)
	}
}
