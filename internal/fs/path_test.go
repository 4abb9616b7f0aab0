package fs

import (
	"testing"
)

func TestVirtualPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple path",
			input:    "EBOOT.BIN",
			expected: "/EBOOT.BIN",
		},
		{
			name:     "nested path",
			input:    "PSP_GAME/SYSDIR/EBOOT.BIN",
			expected: "/PSP_GAME/SYSDIR/EBOOT.BIN",
		},
		{
			name:     "already absolute path",
			input:    "/PSP_GAME/PARAM.SFO",
			expected: "/PSP_GAME/PARAM.SFO",
		},
		{
			name:     "dot path gets cleaned",
			input:    "./UMD_DATA.BIN",
			expected: "/UMD_DATA.BIN",
		},
		{
			name:     "double dot path gets cleaned",
			input:    "PSP_GAME/../UMD_DATA.BIN",
			expected: "/UMD_DATA.BIN",
		},
		{
			name:     "escaping the root stays at the root",
			input:    "/../../UMD_DATA.BIN",
			expected: "/UMD_DATA.BIN",
		},
		{
			name:     "empty path is the root",
			input:    "",
			expected: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := NewVirtualPath(tt.input)
			if vp.String() != tt.expected {
				t.Errorf("Expected path %q, got %q", tt.expected, vp.String())
			}
		})
	}
}

func TestVirtualPathHelpers(t *testing.T) {
	root := NewVirtualPath("/")
	if !root.IsRoot() {
		t.Error("Expected / to be the root")
	}

	child := root.Join("PSP_GAME").Join("SYSDIR")
	if child.String() != "/PSP_GAME/SYSDIR" {
		t.Errorf("Expected joined path %q, got %q", "/PSP_GAME/SYSDIR", child.String())
	}
	if child.IsRoot() {
		t.Error("Joined path should not be the root")
	}
	if child.Base() != "SYSDIR" {
		t.Errorf("Expected base %q, got %q", "SYSDIR", child.Base())
	}
	if child.Parent().String() != "/PSP_GAME" {
		t.Errorf("Expected parent %q, got %q", "/PSP_GAME", child.Parent().String())
	}
	if !root.Parent().IsRoot() {
		t.Error("Parent of the root should be the root")
	}
}
