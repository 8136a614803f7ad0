package fileclass

import "testing"

func TestSkip(t *testing.T) {
	cases := map[string]bool{
		"photo.PNG":    true,
		"video.mp4":    true,
		"font.woff2":   true,
		"main.go":      false,
		"README":       false,
		"archive.tar":  false,
	}
	for name, want := range cases {
		if got := Skip(name); got != want {
			t.Errorf("Skip(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestEligible(t *testing.T) {
	cases := map[string]bool{
		"main.go":      true,
		"config.yaml":  true,
		".env":         true,
		".npmrc":       true,
		"README.md":    true,
		"photo.png":    false,
		"app.exe":      false,
		"archive.tar":  false,
	}
	for name, want := range cases {
		if got := Eligible(name); got != want {
			t.Errorf("Eligible(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestBinary(t *testing.T) {
	cases := map[string]bool{
		"lib.DLL":     true,
		"app.exe":     true,
		"handler.so":  true,
		"main.go":     false,
		"config.yaml": false,
	}
	for name, want := range cases {
		if got := Binary(name); got != want {
			t.Errorf("Binary(%q) = %v, want %v", name, got, want)
		}
	}
}
