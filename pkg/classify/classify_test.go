package classify

import "testing"

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	ranges, err := ParseHexRanges([]string{"ADF7C8-AFFFFF", "43C000-43CFFF"})
	if err != nil {
		t.Fatalf("Failed to parse ranges: %v", err)
	}
	return New(ranges, []string{"rch", "REACH", " ascot ", ""})
}

func TestParseHexRange(t *testing.T) {
	tests := []struct {
		in      string
		want    HexRange
		wantErr bool
	}{
		{"ADF7C8-AFFFFF", HexRange{0xADF7C8, 0xAFFFFF}, false},
		{"adf7c8 - afffff", HexRange{0xADF7C8, 0xAFFFFF}, false},
		{"43C123", HexRange{0x43C123, 0x43C123}, false},
		{"AFFFFF-ADF7C8", HexRange{}, true},
		{"XYZ-AFFFFF", HexRange{}, true},
		{"ADF7C8-", HexRange{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHexRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseHexRange(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsMilitary(t *testing.T) {
	c := testClassifier(t)

	tests := []struct {
		name     string
		id       string
		callsign string
		want     bool
	}{
		{"US military block regardless of callsign", "ADF7C9", "UAL123", true},
		{"lower case id", "adf7c9", "", true},
		{"upper bound inclusive", "AFFFFF", "", true},
		{"just below block", "ADF7C7", "DAL1", false},
		{"UK block", "43c5a0", "", true},
		{"military callsign prefix", "a12345", "RCH871", true},
		{"callsign needs trimming and upper casing", "a12345", "  ascot42 ", true},
		{"prefix must lead", "a12345", "XRCH1", false},
		{"non-hex id falls through to callsign", "~tisb1", "REACH11", true},
		{"civil", "4ca123", "RYR9", false},
		{"blank callsign", "4ca123", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsMilitary(tt.id, tt.callsign); got != tt.want {
				t.Errorf("IsMilitary(%q, %q) = %v, want %v", tt.id, tt.callsign, got, tt.want)
			}
		})
	}
}

func TestIsMilitaryDeterministic(t *testing.T) {
	c := testClassifier(t)
	inputs := [][2]string{{"ADF7C9", ""}, {"a12345", "RCH1"}, {"4ca123", "RYR9"}}
	for _, in := range inputs {
		first := c.IsMilitary(in[0], in[1])
		for i := 0; i < 10; i++ {
			if c.IsMilitary(in[0], in[1]) != first {
				t.Fatalf("IsMilitary(%q, %q) changed between calls", in[0], in[1])
			}
		}
	}
}

func TestClassifierCopiesInputs(t *testing.T) {
	ranges := []HexRange{{0x100, 0x200}}
	c := New(ranges, []string{"RCH"})
	ranges[0] = HexRange{0x900, 0x900}

	if !c.IsMilitary("000150", "") {
		t.Error("Classifier should not observe caller mutation of ranges")
	}
	if got := c.Prefixes(); len(got) != 1 || got[0] != "RCH" {
		t.Errorf("Unexpected prefixes %v", got)
	}
}

func TestNilClassifier(t *testing.T) {
	var c *Classifier
	if c.IsMilitary("ADF7C9", "RCH1") {
		t.Error("nil classifier should classify everything as civilian")
	}
}
