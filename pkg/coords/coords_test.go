package coords

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

func TestParseDegrees(t *testing.T) {
	tests := []struct {
		name    string
		cell    string
		want    float64
		wantErr bool
	}{
		{name: "dot decimal", cell: "43.2630", want: 43.2630},
		{name: "comma decimal", cell: "43,2630", want: 43.2630},
		{name: "negative comma decimal", cell: "-2,9350", want: -2.9350},
		{name: "surrounding whitespace", cell: "  10.5 ", want: 10.5},
		{name: "integer", cell: "7", want: 7},
		{name: "out of range is accepted", cell: "123.4", want: 123.4},
		{name: "empty", cell: "", wantErr: true},
		{name: "blank", cell: "   ", wantErr: true},
		{name: "text", cell: "north", wantErr: true},
		{name: "two separators", cell: "1,2.3", wantErr: true},
		{name: "nan", cell: "NaN", wantErr: true},
		{name: "infinity", cell: "Inf", wantErr: true},
		{name: "negative infinity", cell: "-Infinity", wantErr: true},
		{name: "overflow", cell: "1e400", wantErr: true},
		{name: "hex float", cell: "0x1p-2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDegrees(tt.cell)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDegrees(%q) expected error, got %f", tt.cell, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDegrees(%q) unexpected error: %v", tt.cell, err)
			}
			if !almostEqual(got, tt.want, 1e-12) {
				t.Errorf("ParseDegrees(%q) = %f, want %f", tt.cell, got, tt.want)
			}
		})
	}
}

func TestParseMGRS(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "10-digit precision", input: "47QME8598697460"},
		{name: "8-digit precision", input: "18SUJ23370651"},
		{name: "4-digit precision", input: "18SUJ2306"},
		{name: "Invalid band I", input: "18SIJ1234567890", wantErr: true},
		{name: "Odd digit count", input: "18SUJ123456789", wantErr: true},
		{name: "Empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseMGRS(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMGRS(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMGRS(%q) unexpected error: %v", tt.input, err)
			}
			if result.Format != FormatMGRS {
				t.Errorf("ParseMGRS(%q) format = %v, want FormatMGRS", tt.input, result.Format)
			}
		})
	}
}

func TestMGRSRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		lat  float64
		lon  float64
	}{
		{"Bilbao", 43.263, -2.935},
		{"Sydney", -33.857, 151.215},
		{"London", 51.501, -0.125},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ToMGRS(tc.lat, tc.lon, 5)
			if err != nil {
				t.Fatalf("ToMGRS(%f, %f) error: %v", tc.lat, tc.lon, err)
			}

			result, err := Parse(s)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", s, err)
			}
			if result.Format != FormatMGRS {
				t.Errorf("Parse(%q) format = %v, want mgrs", s, result.Format)
			}
			if !almostEqual(result.Location.Latitude, tc.lat, 0.0001) ||
				!almostEqual(result.Location.Longitude, tc.lon, 0.0001) {
				t.Errorf("round trip got (%f, %f), want (%f, %f)",
					result.Location.Latitude, result.Location.Longitude, tc.lat, tc.lon)
			}
		})
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLat float64
		wantLon float64
		wantErr bool
	}{
		{name: "comma separated", input: "43.263, -2.935", wantLat: 43.263, wantLon: -2.935},
		{name: "space separated", input: "43.263 -2.935", wantLat: 43.263, wantLon: -2.935},
		{name: "semicolon separated", input: "43.263;-2.935", wantLat: 43.263, wantLon: -2.935},
		{name: "latitude out of range", input: "91, 0", wantErr: true},
		{name: "longitude out of range", input: "0, 181", wantErr: true},
		{name: "single value", input: "43.263", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDecimal(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDecimal(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) unexpected error: %v", tt.input, err)
			}
			if result.Location.Latitude != tt.wantLat || result.Location.Longitude != tt.wantLon {
				t.Errorf("ParseDecimal(%q) = (%f, %f), want (%f, %f)", tt.input,
					result.Location.Latitude, result.Location.Longitude, tt.wantLat, tt.wantLon)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"18SUJ23370651", FormatMGRS},
		{"43.263, -2.935", FormatDecimal},
		{"Gran Via 1, Bilbao", FormatUnknown},
		{"", FormatUnknown},
	}

	for _, tt := range tests {
		if got := DetectFormat(tt.input); got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormat_String(t *testing.T) {
	if FormatDecimal.String() != "decimal" || FormatMGRS.String() != "mgrs" || FormatUnknown.String() != "unknown" {
		t.Error("unexpected format names")
	}
}
