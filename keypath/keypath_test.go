package keypath

import (
	"bytes"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []string{
		"",
		"44'/60'/0'/0/0",
		"m/44'/60'/0'/0",
		"0",
	}
	for _, s := range tests {
		p, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		got := p.String()
		// canonical form omits the "./" prefix but otherwise matches.
		want := s
		if want == "" {
			want = ""
		}
		if got != want {
			t.Errorf("Parse(%q).String() = %q, want %q", s, got, want)
		}
	}
}

func TestParseSources(t *testing.T) {
	tests := []struct {
		in   string
		want Source
	}{
		{"m", Master},
		{"m/0", Master},
		{"..", Parent},
		{"../0", Parent},
		{".", Current},
		{"0", Current},
		{"", Current},
	}
	for _, tc := range tests {
		p, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if p.Source != tc.want {
			t.Errorf("Parse(%q).Source = %v, want %v", tc.in, p.Source, tc.want)
		}
	}
}

func TestParseHardened(t *testing.T) {
	p, err := Parse("44'/0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(p.Components))
	}
	if !p.Components[0].Hardened || p.Components[0].Value != 44 {
		t.Errorf("component 0 = %+v", p.Components[0])
	}
	if p.Components[1].Hardened || p.Components[1].Value != 0 {
		t.Errorf("component 1 = %+v", p.Components[1])
	}
}

func TestParseRejectsNonDigit(t *testing.T) {
	if _, err := Parse("abc"); err == nil {
		t.Fatal("expected error for non-digit component")
	}
}

func TestParseRejectsTooManyComponents(t *testing.T) {
	if _, err := Parse("0/1/2/3/4/5/6/7/8/9/10"); err == nil {
		t.Fatal("expected error for 11 components")
	}
}

func TestEncodeHardenedBit(t *testing.T) {
	p, err := Parse("44'/0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	encoded := p.Encode()
	want := []byte{0x80, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(encoded, want) {
		t.Errorf("Encode() = % X, want % X", encoded, want)
	}
}

func TestDecodeComponentsRoundTrip(t *testing.T) {
	p, _ := Parse("44'/60'/0'/0/0")
	encoded := p.Encode()
	components, err := DecodeComponents(encoded)
	if err != nil {
		t.Fatalf("DecodeComponents: %v", err)
	}
	if len(components) != len(p.Components) {
		t.Fatalf("length mismatch: %d vs %d", len(components), len(p.Components))
	}
	for i := range components {
		if components[i] != p.Components[i] {
			t.Errorf("component %d = %+v, want %+v", i, components[i], p.Components[i])
		}
	}
}

func TestEmptyPathEncodesEmpty(t *testing.T) {
	p, _ := Parse("")
	if len(p.Encode()) != 0 {
		t.Errorf("expected empty encoding for current-key path")
	}
}
