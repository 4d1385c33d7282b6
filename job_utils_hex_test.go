package stratumcore

import (
	"bytes"
	"testing"
)

func TestHexLUTAcceptsUpperAndLower(t *testing.T) {
	dstLower := make([]byte, 4)
	if err := decodeHexToFixedBytes(dstLower, "deadBEEF"); err != nil {
		t.Fatalf("decode lower/mixed: %v", err)
	}

	dstUpper := make([]byte, 4)
	if err := decodeHexToFixedBytes(dstUpper, "DEADBEEF"); err != nil {
		t.Fatalf("decode upper: %v", err)
	}

	if !bytes.Equal(dstLower, dstUpper) {
		t.Fatalf("mixed-case decode mismatch: lower=%x upper=%x", dstLower, dstUpper)
	}

	gotStrLower, err := parseUint32BEHex("deadbeef")
	if err != nil {
		t.Fatalf("parse lower: %v", err)
	}
	gotStrUpper, err := parseUint32BEHex("DEADBEEF")
	if err != nil {
		t.Fatalf("parse upper: %v", err)
	}
	if gotStrLower != gotStrUpper || gotStrLower != 0xdeadbeef {
		t.Fatalf("parse mismatch: lower=%08x upper=%08x", gotStrLower, gotStrUpper)
	}
	if got := uint32ToBEHex(gotStrLower); got != "deadbeef" {
		t.Fatalf("uint32ToBEHex = %q", got)
	}
}

func TestHexLUTRejectsInvalid(t *testing.T) {
	dst := make([]byte, 4)
	if err := decodeHexToFixedBytes(dst, "deadbeeg"); err == nil {
		t.Fatalf("expected invalid hex digit error")
	}
	if err := decodeHexToFixedBytes(dst, "deadbe"); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := parseUint32BEHex("zzzzzzzz"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestIsHex(t *testing.T) {
	cases := map[string]bool{
		"":         true,
		"00":       true,
		"aBcD":     true,
		"abc":      false,
		"0x12":     false,
		"12 4":     false,
		"ffffffff": true,
	}
	for in, want := range cases {
		if got := isHex(in); got != want {
			t.Fatalf("isHex(%q) = %v, want %v", in, got, want)
		}
	}
}
