package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/bdr-fiscal/tse-driver/pkg/block"
	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
	"github.com/sirupsen/logrus"
)

// fakeDevice is a simulated TSE command file: Write appends the
// written block to a log and arms whatever response ReadBlock should
// hand back next, optionally after a number of "not ready" blocks.
type fakeDevice struct {
	writes       [][]byte
	notReadyLeft int
	nextReply    []byte
	reads        int
	failRead     error
}

func (f *fakeDevice) WriteBlock(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeDevice) ReadBlock() ([]byte, error) {
	f.reads++
	if f.failRead != nil {
		return nil, f.failRead
	}
	if f.notReadyLeft > 0 {
		f.notReadyLeft--
		blk := make([]byte, block.Size)
		copy(blk, magic)
		copy(blk[headerLen:], []byte{0, 0, 0, 0})
		blk[readinessOffset] = 0xFF
		blk[readinessOffset+1] = 0xFF
		return blk, nil
	}
	return f.nextReply, nil
}

func (f *fakeDevice) Close() error { return nil }

func suspendResponseBlock(token [4]byte) []byte {
	blk := make([]byte, block.Size)
	copy(blk, magic)
	copy(blk[headerLen:], token[:])
	blk[headerLen+tokenLen] = 0x00
	return blk
}

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStartWritesSuspendDisablePayload(t *testing.T) {
	dev := &fakeDevice{nextReply: suspendResponseBlock([4]byte{0x01, 0x02, 0x03, 0x04})}
	m, err := Start(dev, silentLogger(), time.Second)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.dev.Close()

	if len(dev.writes) != 1 {
		t.Fatalf("expected exactly one write during Start, got %d", len(dev.writes))
	}
	got := dev.writes[0][headerLen+tokenLen : headerLen+tokenLen+6]
	if !bytes.Equal(got, suspendDisablePayload) {
		t.Errorf("first written payload = % x, want % x", got, suspendDisablePayload)
	}
	if len(dev.writes[0]) != block.Size {
		t.Errorf("written block length = %d, want %d", len(dev.writes[0]), block.Size)
	}
	if !bytes.Equal(dev.writes[0][:headerLen], magic) {
		t.Errorf("written block did not start with the magic header")
	}
	if !bytes.Equal(dev.writes[0][headerLen:headerLen+tokenLen], hostToken[:]) {
		t.Errorf("written block did not carry the host token")
	}
}

func TestReadinessPollRetriesUntilReady(t *testing.T) {
	dev := &fakeDevice{
		notReadyLeft: 3,
		nextReply:    suspendResponseBlock([4]byte{0xAA, 0xBB, 0xCC, 0xDD}),
	}
	m := &MSC{dev: dev, log: silentLogger(), pollInterval: time.Millisecond, now: timeNowStub(), sleep: func(time.Duration) {}}
	blk, err := m.pollUntilReady(time.Second)
	if err != nil {
		t.Fatalf("pollUntilReady: %v", err)
	}
	if dev.reads < 4 {
		t.Errorf("expected at least 4 reads (3 not-ready + 1 ready), got %d", dev.reads)
	}
	if !bytes.Equal(blk[:headerLen], magic) {
		t.Errorf("final block did not carry the magic header")
	}
	if m.pollRetries != 3 {
		t.Errorf("pollRetries = %d, want 3", m.pollRetries)
	}
}

func TestSuspendToggleCountTracksStartAndClose(t *testing.T) {
	dev := &fakeDevice{nextReply: suspendResponseBlock([4]byte{1, 2, 3, 4})}
	m, err := Start(dev, silentLogger(), time.Second)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.SuspendToggles() != 1 {
		t.Fatalf("SuspendToggles after Start = %d, want 1", m.SuspendToggles())
	}
	if err := m.Close(time.Second); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.SuspendToggles() != 2 {
		t.Fatalf("SuspendToggles after Close = %d, want 2", m.SuspendToggles())
	}
}

func timeNowStub() func() time.Time {
	base := time.Now()
	calls := 0
	return func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Millisecond)
	}
}

func TestReadinessPollTimesOut(t *testing.T) {
	dev := &fakeDevice{notReadyLeft: 1 << 30}
	m := &MSC{dev: dev, log: silentLogger(), pollInterval: time.Millisecond, now: timeNowStub(), sleep: func(time.Duration) {}}
	_, err := m.pollUntilReady(5 * time.Millisecond)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	tseErr, ok := err.(*tseerr.Error)
	if !ok || tseErr.Kind != tseerr.KindTimeout {
		t.Fatalf("got %v, want a KindTimeout *tseerr.Error", err)
	}
}

func TestReadRejectsHostTokenFromDevice(t *testing.T) {
	dev := &fakeDevice{nextReply: suspendResponseBlock(hostToken)}
	m := &MSC{dev: dev, log: silentLogger(), pollInterval: time.Millisecond, now: time.Now, sleep: func(time.Duration) {}}
	_, err := m.Read(time.Second)
	if err == nil {
		t.Fatalf("expected an error when the device echoes the host token")
	}
}

func TestCloseAttemptsSuspendEvenAfterPriorFailures(t *testing.T) {
	dev := &fakeDevice{nextReply: suspendResponseBlock([4]byte{1, 2, 3, 4})}
	m := &MSC{dev: dev, log: silentLogger(), pollInterval: time.Millisecond, now: time.Now, sleep: func(time.Duration) {}}
	dev.failRead = tseerr.Io("simulated read failure", nil)
	if _, err := m.Read(time.Second); err == nil {
		t.Fatalf("expected the simulated read failure to surface")
	}
	dev.failRead = nil
	if err := m.Close(time.Second); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(dev.writes) != 1 {
		t.Fatalf("expected Close to write the suspend-enable block, got %d writes", len(dev.writes))
	}
	got := dev.writes[0][headerLen+tokenLen : headerLen+tokenLen+6]
	if !bytes.Equal(got, suspendEnablePayload) {
		t.Errorf("Close wrote %x, want suspend-enable payload %x", got, suspendEnablePayload)
	}
}
