package axlf

import "fmt"

// readBinaryImage reconstructs the container from the fixed header and the
// section header array. Every payload is copied out of the input buffer so
// the container does not alias caller memory after the call returns.
func (c *Container) readBinaryImage(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: input of %d bytes is smaller than the fixed header", ErrCorruptImage, len(data))
	}
	hdr, ok := decodeHeader(data[:HeaderSize])
	if !ok {
		return fmt.Errorf("%w: unable to decode the fixed header", ErrCorruptImage)
	}
	if !hdr.Valid() {
		return fmt.Errorf("%w: header start key is %q", ErrInvalidMagic, hdr.MagicString())
	}
	c.Header = hdr
	c.sections = nil

	for i := uint32(0); i < hdr.NumSections; i++ {
		off := HeaderSize + int(i)*SectionHeaderSize
		end := off + SectionHeaderSize
		if end > len(data) {
			return fmt.Errorf("%w: section header %d extends past the end of the image", ErrCorruptImage, i)
		}
		sh, ok := decodeSectionHeader(data[off:end])
		if !ok {
			return fmt.Errorf("%w: unable to decode section header %d", ErrCorruptImage, i)
		}
		sec, err := NewSection(SectionKind(sh.Kind), "")
		if err != nil {
			return fmt.Errorf("section header %d: %w", i, err)
		}
		if err := sec.ReadData(data, sh); err != nil {
			return err
		}
		c.sections = append(c.sections, sec)
		c.log.Debug("read section", "section", sec.Kind().String(), "index", sec.IndexName(),
			"offset", sh.Offset, "size", sh.Size)
	}
	c.log.Info("image loaded", "sections", len(c.sections), "bytes", hdr.Length)
	return nil
}
