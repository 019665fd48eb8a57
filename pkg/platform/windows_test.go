// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"fmt"
	"testing"
)

func TestIsWindowsReservedName(t *testing.T) {
	t.Parallel()

	reserved := []string{"con", "CON", "Con", "prn", "aux", "nul", "com1", "COM9", "lpt1", "lpt9",
		"con.txt", "NUL.exe", "com1.log", "nul.tar.gz", "aux .txt"}
	allowed := []string{"", "SRA.exe", "config.json", "confile", "com10", "lpt0", "console.log", ".nul"}

	for _, name := range reserved {
		if !IsWindowsReservedName(name) {
			t.Errorf("IsWindowsReservedName(%q) = false, want true", name)
		}
	}
	for _, name := range allowed {
		if IsWindowsReservedName(name) {
			t.Errorf("IsWindowsReservedName(%q) = true, want false", name)
		}
	}
}

func TestWindowsReservedNames_Complete(t *testing.T) {
	t.Parallel()

	want := []string{"CON", "PRN", "AUX", "NUL"}
	for i := 1; i <= 9; i++ {
		want = append(want, fmt.Sprintf("COM%d", i), fmt.Sprintf("LPT%d", i))
	}
	for _, name := range want {
		if !WindowsReservedNames[name] {
			t.Errorf("WindowsReservedNames missing %q", name)
		}
	}
	if len(WindowsReservedNames) != len(want) {
		t.Errorf("WindowsReservedNames has %d entries, want %d", len(WindowsReservedNames), len(want))
	}
}

func TestHasWindowsReservedElement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel  string
		want bool
	}{
		{"SRA.exe", false},
		{"data/config.json", false},
		{"data/con/settings.json", true},
		{"ui/LPT1.png", true},
		{"", false},
	}

	for _, tt := range tests {
		if got := HasWindowsReservedElement(tt.rel); got != tt.want {
			t.Errorf("HasWindowsReservedElement(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
