package command

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

func TestEncodeFrameWireShape(t *testing.T) {
	params := []Param{Byte(0x01)}
	got, err := EncodeFrame(AuthenticateUser, params)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if !bytes.Equal(got[0:2], innerFrameMagic[:]) {
		t.Errorf("frame did not start with the inner magic: % x", got[:2])
	}
	gotCmd := binary.BigEndian.Uint16(got[2:4])
	if ID(gotCmd) != AuthenticateUser {
		t.Errorf("command id = 0x%04x, want 0x%04x", gotCmd, AuthenticateUser)
	}
	gotLen := binary.BigEndian.Uint16(got[4:6])
	body, _ := EncodeParams(params)
	if int(gotLen) != len(body) {
		t.Errorf("declared param-block length = %d, want %d", gotLen, len(body))
	}
	if !bytes.Equal(got[6:], body) {
		t.Errorf("param block bytes did not match EncodeParams output")
	}
}

// fakeFetcher simulates continuation reads/aborts for DecodeResponse
// tests: each entry in fragments is returned in order on successive
// Read calls, and every WriteRaw call is recorded.
type fakeFetcher struct {
	fragments [][]byte
	next      int
	written   []byte
	readErr   error
}

func (f *fakeFetcher) WriteRaw(b byte) error {
	f.written = append(f.written, b)
	return nil
}

func (f *fakeFetcher) Read() ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.next >= len(f.fragments) {
		return nil, tseerr.Framing("no more fragments armed")
	}
	out := f.fragments[f.next]
	f.next++
	return out, nil
}

func normalFirst(params []Param) []byte {
	body, _ := EncodeParams(params)
	out := make([]byte, 0, 2+len(body))
	out = appendUint16(out, uint16(len(body)))
	out = append(out, body...)
	return out
}

func TestDecodeResponseNormalSingleFragment(t *testing.T) {
	params := []Param{Short(7), String("Admin")}
	first := normalFirst(params)
	res, err := DecodeResponse(first, &fakeFetcher{})
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if res.IsRaw {
		t.Fatalf("expected a normal (non-raw) result")
	}
	if len(res.Params) != 2 {
		t.Fatalf("got %d params, want 2", len(res.Params))
	}
}

func TestDecodeResponseDeviceError(t *testing.T) {
	first := []byte{0x80, 0x00} // SE communication failed
	_, err := DecodeResponse(first, &fakeFetcher{})
	if err == nil {
		t.Fatalf("expected a device error")
	}
	tseErr, ok := err.(*tseerr.Error)
	if !ok || tseErr.Kind != tseerr.KindDeviceError || tseErr.Code != 0x8000 {
		t.Fatalf("got %#v, want a KindDeviceError with code 0x8000", err)
	}
}

func TestDecodeResponseUnknownDeviceError(t *testing.T) {
	first := []byte{0x8F, 0xFF}
	_, err := DecodeResponse(first, &fakeFetcher{})
	tseErr, ok := err.(*tseerr.Error)
	if !ok || tseErr.Kind != tseerr.KindUnknownDeviceError {
		t.Fatalf("got %#v, want a KindUnknownDeviceError", err)
	}
}

func TestDecodeResponseExportSingleFragment(t *testing.T) {
	data := []byte("fiscal log export bytes")
	first := make([]byte, 0, 10+len(data))
	first = appendUint16(first, 0x9000)
	var total [8]byte
	binary.BigEndian.PutUint64(total[:], uint64(len(data)))
	first = append(first, total[:]...)
	first = append(first, data...)

	fetcher := &fakeFetcher{}
	res, err := DecodeResponse(first, fetcher)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !res.IsRaw || !bytes.Equal(res.Raw, data) {
		t.Fatalf("got Raw=%q IsRaw=%v, want %q/true", res.Raw, res.IsRaw, data)
	}
	if len(fetcher.written) != 0 {
		t.Errorf("expected no continuation requests when all bytes arrive in the first fragment")
	}
}

func TestDecodeResponseExportFragmented(t *testing.T) {
	full := []byte("0123456789ABCDEF")
	firstChunk := full[:6]
	secondChunk := full[6:12]
	thirdChunk := full[12:]

	first := make([]byte, 0, 10+len(firstChunk))
	first = appendUint16(first, 0x9000)
	var total [8]byte
	binary.BigEndian.PutUint64(total[:], uint64(len(full)))
	first = append(first, total[:]...)
	first = append(first, firstChunk...)

	fetcher := &fakeFetcher{fragments: [][]byte{secondChunk, thirdChunk}}
	res, err := DecodeResponse(first, fetcher)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !bytes.Equal(res.Raw, full) {
		t.Errorf("reassembled = %q, want %q", res.Raw, full)
	}
	if len(fetcher.written) != 2 {
		t.Fatalf("expected 2 continuation requests, got %d", len(fetcher.written))
	}
	for _, b := range fetcher.written {
		if b != fragmentContinue {
			t.Errorf("continuation byte = 0x%02x, want 0x%02x", b, fragmentContinue)
		}
	}
}

func TestDecodeResponseAbortsOnMidStreamFailure(t *testing.T) {
	full := []byte("0123456789")
	firstChunk := full[:4]

	first := make([]byte, 0, 10+len(firstChunk))
	first = appendUint16(first, 0x9000)
	var total [8]byte
	binary.BigEndian.PutUint64(total[:], uint64(len(full)))
	first = append(first, total[:]...)
	first = append(first, firstChunk...)

	fetcher := &fakeFetcher{readErr: tseerr.Io("simulated read failure", nil)}
	_, err := DecodeResponse(first, fetcher)
	if err == nil {
		t.Fatalf("expected the simulated read failure to surface")
	}
	if len(fetcher.written) != 2 {
		t.Fatalf("expected a continue request then an abort request, got %d writes", len(fetcher.written))
	}
	if fetcher.written[0] != fragmentContinue {
		t.Errorf("first write = 0x%02x, want continue 0x%02x", fetcher.written[0], fragmentContinue)
	}
	if fetcher.written[1] != fragmentAbort {
		t.Errorf("second write = 0x%02x, want abort 0x%02x", fetcher.written[1], fragmentAbort)
	}
}
