package axlf

import (
	"fmt"
	"io"
)

// writeImage serializes the container as header, section header array,
// aligned payloads, and the trailing mirror metadata. The header is
// written twice: once provisionally so the payloads land at their final
// offsets, and once after the total image length is known.
func (c *Container) writeImage(w io.WriteSeeker, skipUUID bool) error {
	if !skipUUID {
		c.refreshUUID()
	}
	c.Header.NumSections = uint32(len(c.sections))

	records := c.layoutSections()

	if err := c.writeHeader(w); err != nil {
		return err
	}
	var shBuf [SectionHeaderSize]byte
	for i, rec := range records {
		if !encodeSectionHeader(shBuf[:], rec) {
			return fmt.Errorf("axlf: unable to encode section header %d", i)
		}
		if err := writeFull(w, shBuf[:]); err != nil {
			return err
		}
	}

	pos := uint64(HeaderSize + len(records)*SectionHeaderSize)
	for i, sec := range c.sections {
		if pad := bytesToAlign(pos); pad > 0 {
			if err := writeZeros(w, pad); err != nil {
				return err
			}
			pos += pad
		}
		if pos != records[i].Offset {
			return fmt.Errorf("%w: section %s payload lands at offset %d, header says %d",
				ErrCorruptImage, sec.Kind(), pos, records[i].Offset)
		}
		if err := sec.WriteBuffer(w); err != nil {
			return fmt.Errorf("axlf: writing %s payload: %w", sec.Kind(), err)
		}
		pos += sec.Size()
	}

	mirrorLen, err := c.writeMirror(w, records)
	if err != nil {
		return err
	}
	pos += mirrorLen

	// Rewrite the header now that the true image length is known.
	c.Header.Length = pos
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("axlf: seeking to the image start: %w", err)
	}
	if err := c.writeHeader(w); err != nil {
		return err
	}
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("axlf: seeking to the image end: %w", err)
	}
	return nil
}

// layoutSections computes the final, aligned payload offsets.
func (c *Container) layoutSections() []SectionHeader {
	records := make([]SectionHeader, len(c.sections))
	cursor := uint64(HeaderSize + len(c.sections)*SectionHeaderSize)
	for i, sec := range c.sections {
		cursor += bytesToAlign(cursor)
		rec := headerRecord(sec)
		rec.Offset = cursor
		records[i] = rec
		cursor += sec.Size()
	}
	return records
}

func (c *Container) writeHeader(w io.Writer) error {
	var buf [HeaderSize]byte
	if !encodeHeader(buf[:], c.Header) {
		return fmt.Errorf("axlf: unable to encode the fixed header")
	}
	return writeFull(w, buf[:])
}

func writeZeros(w io.Writer, n uint64) error {
	var zeros [Alignment]byte
	for n > 0 {
		chunk := n
		if chunk > uint64(len(zeros)) {
			chunk = uint64(len(zeros))
		}
		if err := writeFull(w, zeros[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
