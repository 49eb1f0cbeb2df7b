package command

import (
	"reflect"
	"testing"
)

func TestParamEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		param Param
	}{
		{"byte", Byte(0x2A)},
		{"byte array", ByteArray([]byte{0x01, 0x02, 0x03})},
		{"empty byte array", ByteArray(nil)},
		{"short", Short(0xBEEF)},
		{"string", String("TimeAdmin")},
		{"empty string", String("")},
		{"long array", LongArray([]uint32{1, 2, 3})},
		{"empty long array", LongArray(nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := tc.param.Encode(nil)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := DecodeParams(encoded)
			if err != nil {
				t.Fatalf("DecodeParams: %v", err)
			}
			if len(decoded) != 1 {
				t.Fatalf("decoded %d params, want 1", len(decoded))
			}
			if !reflect.DeepEqual(decoded[0], tc.param) {
				t.Errorf("round trip mismatch: got %+v, want %+v", decoded[0], tc.param)
			}
		})
	}
}

func TestEncodeByteWireShape(t *testing.T) {
	got, err := Byte(0x07).Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{byte(TypeByte), 0x00, 0x01, 0x07}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestEncodeStringRejectsNonASCII(t *testing.T) {
	_, err := String("café").Encode(nil)
	if err == nil {
		t.Fatalf("expected a framing error for non-ASCII STRING")
	}
}

func TestDecodeByteArrayRejectsShortLengthField(t *testing.T) {
	bad := []byte{byte(TypeByteArray), 0x00} // declares a 2-byte len field but only 1 byte present
	if _, err := DecodeParams(bad); err == nil {
		t.Fatalf("expected a framing error for a truncated length field")
	}
}

func TestDecodeShortRejectsWrongFixedLengthField(t *testing.T) {
	bad := []byte{byte(TypeShort), 0x00, 0x03, 0x00, 0x01} // should be 00 02
	if _, err := DecodeParams(bad); err == nil {
		t.Fatalf("expected a framing error for a wrong SHORT length field")
	}
}

func TestDecodeLongArrayRejectsNonMultipleOfFour(t *testing.T) {
	bad := []byte{byte(TypeLongArray), 0x00, 0x02, 0x00, 0x05, 0, 0, 0, 0, 0}
	if _, err := DecodeParams(bad); err == nil {
		t.Fatalf("expected a framing error for a byte count not divisible by 4")
	}
}

func TestDecodeParamsMultipleBackToBack(t *testing.T) {
	var buf []byte
	buf, _ = Byte(1).Encode(buf)
	buf, _ = Short(2).Encode(buf)
	buf, _ = String("ok").Encode(buf)

	got, err := DecodeParams(buf)
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d params, want 3", len(got))
	}
	if got[0].Type != TypeByte || got[1].Type != TypeShort || got[2].Type != TypeString {
		t.Errorf("decoded in wrong order/types: %+v", got)
	}
}
