package axlf

import "encoding/binary"

// Explicit little-endian codecs for the fixed on-disk records. The layout is
// the struct layout of Header and SectionHeader with blank padding fields
// written as zero bytes.

func encodeHeader(buf []byte, h Header) bool {
	n, err := binary.Encode(buf, binary.LittleEndian, &h)
	return err == nil && n == HeaderSize
}

func decodeHeader(buf []byte) (Header, bool) {
	var h Header
	n, err := binary.Decode(buf, binary.LittleEndian, &h)
	return h, err == nil && n == HeaderSize
}

func encodeSectionHeader(buf []byte, sh SectionHeader) bool {
	n, err := binary.Encode(buf, binary.LittleEndian, &sh)
	return err == nil && n == SectionHeaderSize
}

func decodeSectionHeader(buf []byte) (SectionHeader, bool) {
	var sh SectionHeader
	n, err := binary.Decode(buf, binary.LittleEndian, &sh)
	return sh, err == nil && n == SectionHeaderSize
}
