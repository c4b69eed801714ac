package registry

import (
	"errors"
	"testing"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "colons lowercase", input: "aa:bb:cc:11:22:33", want: "AABBCC112233"},
		{name: "hyphens uppercase", input: "AA-BB-CC-11-22-33", want: "AABBCC112233"},
		{name: "dots", input: "aabb.cc11.2233", want: "AABBCC112233"},
		{name: "bare", input: "aabbcc112233", want: "AABBCC112233"},
		{name: "spaces", input: "aa bb cc 11 22 33", want: "AABBCC112233"},
		{name: "mixed case", input: "Aa:bB:Cc:11:22:33", want: "AABBCC112233"},
		{name: "too short", input: "aa:bb:cc", wantErr: true},
		{name: "too long", input: "aa:bb:cc:11:22:33:44", wantErr: true},
		{name: "non hex", input: "gg:bb:cc:11:22:33", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMAC(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMAC) {
					t.Fatalf("NormalizeMAC(%q) error = %v, want ErrInvalidMAC", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeMAC(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDeriveDeviceID(t *testing.T) {
	got := DeriveDeviceID("AABBCC112233")
	want := "SmartChill_112233"
	if got != want {
		t.Errorf("DeriveDeviceID = %q, want %q", got, want)
	}
}

func TestDeriveDeviceIDStableAcrossForms(t *testing.T) {
	forms := []string{"aa:bb:cc:11:22:33", "AA-BB-CC-11-22-33", "aabbcc112233"}
	for _, f := range forms {
		norm, err := NormalizeMAC(f)
		if err != nil {
			t.Fatalf("NormalizeMAC(%q): %v", f, err)
		}
		if got := DeriveDeviceID(norm); got != "SmartChill_112233" {
			t.Errorf("DeriveDeviceID from %q = %q, want SmartChill_112233", f, got)
		}
	}
}
