package axlf

import (
	"encoding/binary"
	"testing"
)

func TestHeaderSizeMatchesWireLayout(t *testing.T) {
	t.Parallel()

	if got := binary.Size(Header{}); got != HeaderSize {
		t.Fatalf("header wire size: got %d want %d", got, HeaderSize)
	}
	if got := binary.Size(SectionHeader{}); got != SectionHeaderSize {
		t.Fatalf("section header wire size: got %d want %d", got, SectionHeaderSize)
	}
}

func TestHeaderEncodingLittleEndian(t *testing.T) {
	t.Parallel()

	var h Header
	setFixed(h.Magic[:], Magic)
	h.SignatureLength = -1
	h.UniqueID = 0x1122334455667788
	h.TimeStamp = 42
	h.VersionMajor = 2
	h.VersionMinor = 1
	h.VersionPatch = 0x0304
	h.Mode = uint16(ModePR)
	h.Length = 0x1000
	h.ActionMask = ActionMaskLoadAIE
	h.NumSections = 3

	var buf [HeaderSize]byte
	if !encodeHeader(buf[:], h) {
		t.Fatalf("encode header failed")
	}

	if string(buf[0:7]) != Magic {
		t.Fatalf("magic bytes: got %q", buf[0:8])
	}
	if buf[7] != 0 {
		t.Fatalf("magic terminator: got %#x", buf[7])
	}
	if got := int32(binary.LittleEndian.Uint32(buf[8:12])); got != -1 {
		t.Fatalf("signature length: got %d want -1", got)
	}
	if got := binary.LittleEndian.Uint64(buf[272:280]); got != h.UniqueID {
		t.Fatalf("unique ID at offset 272: got %#x", got)
	}
	if got := binary.LittleEndian.Uint64(buf[280:288]); got != h.TimeStamp {
		t.Fatalf("timestamp at offset 280: got %d", got)
	}
	if buf[296] != 2 || buf[297] != 1 {
		t.Fatalf("version major/minor at 296/297: got %d/%d", buf[296], buf[297])
	}
	if got := binary.LittleEndian.Uint16(buf[298:300]); got != 0x0304 {
		t.Fatalf("version patch at offset 298: got %#x", got)
	}
	if got := binary.LittleEndian.Uint64(buf[304:312]); got != h.Length {
		t.Fatalf("length at offset 304: got %#x", got)
	}
	if got := binary.LittleEndian.Uint32(buf[424:428]); got != ActionMaskLoadAIE {
		t.Fatalf("action mask at offset 424: got %#x", got)
	}
	if got := binary.LittleEndian.Uint32(buf[428:432]); got != 3 {
		t.Fatalf("section count at offset 428: got %d", got)
	}

	back, ok := decodeHeader(buf[:])
	if !ok {
		t.Fatalf("decode header failed")
	}
	if back != h {
		t.Fatalf("header round trip mismatch:\n got %+v\nwant %+v", back, h)
	}
}

func TestSectionHeaderEncodingLittleEndian(t *testing.T) {
	t.Parallel()

	var sh SectionHeader
	sh.Kind = uint32(KindIPLayout)
	setFixed(sh.Name[:], "design")
	setFixed(sh.IndexName[:], "kernel0")
	sh.Offset = 0x200
	sh.Size = 0x50

	var buf [SectionHeaderSize]byte
	if !encodeSectionHeader(buf[:], sh) {
		t.Fatalf("encode section header failed")
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != uint32(KindIPLayout) {
		t.Fatalf("kind: got %d", got)
	}
	if got := trimFixed(buf[4:20]); got != "design" {
		t.Fatalf("name: got %q", got)
	}
	if got := trimFixed(buf[20:36]); got != "kernel0" {
		t.Fatalf("index name: got %q", got)
	}
	if got := binary.LittleEndian.Uint64(buf[40:48]); got != 0x200 {
		t.Fatalf("offset at byte 40: got %#x", got)
	}
	if got := binary.LittleEndian.Uint64(buf[48:56]); got != 0x50 {
		t.Fatalf("size at byte 48: got %#x", got)
	}

	back, ok := decodeSectionHeader(buf[:])
	if !ok {
		t.Fatalf("decode section header failed")
	}
	if back != sh {
		t.Fatalf("section header round trip mismatch")
	}
}
