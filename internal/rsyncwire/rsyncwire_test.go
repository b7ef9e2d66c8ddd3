package rsyncwire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oferchen/gorsync"
)

func TestCountingReaderAccumulates(t *testing.T) {
	r := &CountingReader{R: strings.NewReader("hello world")}
	buf := make([]byte, 5)
	if _, err := r.Read(buf); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(buf); err != nil {
		t.Fatal(err)
	}
	if r.BytesRead != 10 {
		t.Errorf("BytesRead = %d, want 10", r.BytesRead)
	}
}

func TestCountingWriterAccumulates(t *testing.T) {
	var buf bytes.Buffer
	w := &CountingWriter{W: &buf}
	w.Write([]byte("abc"))
	w.Write([]byte("de"))
	if w.BytesWritten != 5 {
		t.Errorf("BytesWritten = %d, want 5", w.BytesWritten)
	}
}

func TestConnByteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := &Conn{Reader: &buf, Writer: &buf}
	if err := c.WriteByte(0x42); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x42 {
		t.Errorf("ReadByte() = %#x, want 0x42", got)
	}
}

func TestConnInt32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1 << 20, -(1 << 20)} {
		var buf bytes.Buffer
		c := &Conn{Reader: &buf, Writer: &buf}
		if err := c.WriteInt32(v); err != nil {
			t.Fatal(err)
		}
		got, err := c.ReadInt32()
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("ReadInt32() = %d, want %d", got, v)
		}
	}
}

func TestConnInt64RoundTripSmall(t *testing.T) {
	var buf bytes.Buffer
	c := &Conn{Reader: &buf, Writer: &buf}
	const want = int64(12345)
	if err := c.WriteInt64(want); err != nil {
		t.Fatal(err)
	}
	// Values that fit in an int32 must be sent as a plain 4-byte integer,
	// not the 0xffffffff-prefixed long form.
	if buf.Len() != 4 {
		t.Errorf("encoded length = %d, want 4 for a small value", buf.Len())
	}
	got, err := c.ReadInt64()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ReadInt64() = %d, want %d", got, want)
	}
}

func TestConnInt64RoundTripLarge(t *testing.T) {
	var buf bytes.Buffer
	c := &Conn{Reader: &buf, Writer: &buf}
	const want = int64(1) << 40
	if err := c.WriteInt64(want); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 12 {
		t.Errorf("encoded length = %d, want 12 (4-byte sentinel + 8-byte value)", buf.Len())
	}
	got, err := c.ReadInt64()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ReadInt64() = %d, want %d", got, want)
	}
}

func TestConnStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := &Conn{Reader: &buf, Writer: &buf}
	const want = "hello, rsync"
	if err := c.WriteString(want); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ReadString() = %q, want %q", got, want)
	}
}

func TestConnReadStringRejectsNegativeLength(t *testing.T) {
	var buf bytes.Buffer
	c := &Conn{Reader: &buf, Writer: &buf}
	if err := c.WriteInt32(-1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReadString(); err == nil {
		t.Error("expected an error for a negative-length string header")
	}
}

func TestMultiplexRoundTripSingleFrame(t *testing.T) {
	var buf bytes.Buffer
	mw := &MultiplexWriter{Writer: &buf, Tag: rsync.MsgData}
	payload := []byte("block of data")
	if _, err := mw.Write(payload); err != nil {
		t.Fatal(err)
	}

	mr := &MultiplexReader{Reader: &buf}
	got := make([]byte, len(payload))
	if _, err := mr.Read(got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read() = %q, want %q", got, payload)
	}
}

func TestMultiplexRoundTripSplitsAcrossFrames(t *testing.T) {
	var buf bytes.Buffer
	mw := &MultiplexWriter{Writer: &buf, Tag: rsync.MsgData}
	payload := bytes.Repeat([]byte{0x9}, int(rsync.MaxFramePayload)+100)
	if err := mw.WriteMsg(rsync.MsgData, payload); err != nil {
		t.Fatal(err)
	}

	mr := &MultiplexReader{Reader: &buf}
	got := make([]byte, 0, len(payload))
	tmp := make([]byte, 4096)
	for len(got) < len(payload) {
		n, err := mr.Read(tmp)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, tmp[:n]...)
	}
	if !bytes.Equal(got, payload) {
		t.Error("reassembled payload does not match original across split frames")
	}
}

func TestMultiplexReaderRoutesNonDataFramesToHandler(t *testing.T) {
	var buf bytes.Buffer
	mw := &MultiplexWriter{Writer: &buf, Tag: rsync.MsgData}
	if err := mw.WriteMsg(rsync.MsgError, []byte("oh no")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteMsg(rsync.MsgData, []byte("payload")); err != nil {
		t.Fatal(err)
	}

	var gotCode rsync.MsgCode
	var gotPayload []byte
	mr := &MultiplexReader{
		Reader: &buf,
		MsgHandler: func(code rsync.MsgCode, payload []byte) error {
			gotCode = code
			gotPayload = append([]byte(nil), payload...)
			return nil
		},
	}
	got := make([]byte, len("payload"))
	if _, err := mr.Read(got); err != nil {
		t.Fatal(err)
	}
	if gotCode != rsync.MsgError {
		t.Errorf("MsgHandler code = %v, want MsgError", gotCode)
	}
	if string(gotPayload) != "oh no" {
		t.Errorf("MsgHandler payload = %q, want %q", gotPayload, "oh no")
	}
	if string(got) != "payload" {
		t.Errorf("Read() = %q, want %q", got, "payload")
	}
}
