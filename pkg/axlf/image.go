package axlf

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/sys/unix"
)

// Image is a validated read-only view of an archive on disk. It is the
// inspection counterpart of Container: nothing is copied out of the file,
// section payloads are served as slices of the mapping.
type Image struct {
	Data     []byte
	Header   *Header
	Sections []SectionHeader
	mmapped  bool
}

// OpenImage maps an archive read-only and validates its structure.
// If mmap is unavailable, it falls back to ReadAt-based loading.
// The returned image must be closed to release any mapping.
func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size64 := stat.Size()
	if size64 < 0 {
		return nil, ErrCorruptImage
	}
	if size64 > int64(int(^uint(0)>>1)) {
		// cannot index this file safely as []byte on this architecture.
		return nil, ErrCorruptImage
	}
	size := int(size64)
	if size < HeaderSize {
		return nil, ErrCorruptImage
	}

	// Prefer mmap where available for zero-copy payload slices.
	data, err := unix.Mmap(
		int(f.Fd()),
		0,
		size,
		unix.PROT_READ,
		unix.MAP_SHARED,
	)
	if err == nil {
		img, parseErr := parseImageData(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return img, nil
	}

	// Fallback path that does not require mmap support.
	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseImageData(data, false)
}

// OpenImageReaderAt loads and validates an archive from a random-access
// reader without mmap.
func OpenImageReaderAt(r io.ReaderAt, size int64) (*Image, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptImage
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parseImageData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrCorruptImage
	}
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parseImageData(data []byte, mmapped bool) (*Image, error) {
	if len(data) < HeaderSize {
		return nil, ErrCorruptImage
	}
	hdr, ok := decodeHeader(data[:HeaderSize])
	if !ok {
		return nil, ErrCorruptImage
	}
	if !hdr.Valid() {
		return nil, ErrInvalidMagic
	}
	if hdr.Length != uint64(len(data)) {
		return nil, fmt.Errorf("%w: header length %d does not match the %d byte file", ErrCorruptImage, hdr.Length, len(data))
	}

	// Section header array bounds check
	dirStart := uint64(HeaderSize)
	dirSize := uint64(hdr.NumSections) * uint64(SectionHeaderSize)
	dirEnd := dirStart + dirSize
	if dirEnd < dirStart || dirEnd > uint64(len(data)) {
		return nil, ErrCorruptImage
	}

	// Copy and decode the section header array out of the file data.
	sections := make([]SectionHeader, hdr.NumSections)
	for i := range sections {
		start := int(dirStart) + i*SectionHeaderSize
		end := start + SectionHeaderSize
		sh, ok := decodeSectionHeader(data[start:end])
		if !ok {
			return nil, ErrCorruptImage
		}
		sections[i] = sh
	}

	// Validate payload bounds and the alignment invariant.
	for i := range sections {
		s := &sections[i]
		if s.Size > uint64(len(data)) {
			return nil, fmt.Errorf("%w: section %d size out of range", ErrCorruptImage, i)
		}
		end := s.Offset + s.Size
		if end < s.Offset {
			return nil, fmt.Errorf("%w: section %d offset overflow", ErrCorruptImage, i)
		}
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: section %d out of bounds", ErrCorruptImage, i)
		}
		if s.Offset < dirEnd {
			return nil, fmt.Errorf("%w: section %d overlaps the header area", ErrCorruptImage, i)
		}
		if (s.Offset % Alignment) != 0 {
			return nil, fmt.Errorf("%w: section %d offset not %d-byte aligned", ErrCorruptImage, i, Alignment)
		}
	}

	return &Image{
		Data:     data,
		Header:   &hdr,
		Sections: sections,
		mmapped:  mmapped,
	}, nil
}

// Close releases file resources and any mmap backing.
func (img *Image) Close() error {
	if img == nil {
		return nil
	}
	if img.Data != nil {
		var err error
		if img.mmapped {
			err = unix.Munmap(img.Data)
		}
		img.Data = nil
		img.Header = nil
		img.Sections = nil
		img.mmapped = false
		return err
	}
	img.Header = nil
	img.Sections = nil
	img.mmapped = false
	return nil
}

// Section returns the first section header matching the given kind and
// index name, or nil if it does not exist.
func (img *Image) Section(k SectionKind, indexName string) *SectionHeader {
	for i := range img.Sections {
		s := &img.Sections[i]
		if SectionKind(s.Kind) == k && trimFixed(s.IndexName[:]) == indexName {
			return s
		}
	}
	return nil
}

// SectionData returns a zero-copy slice covering the section payload.
// The caller must not retain this slice after Image.Close().
func (img *Image) SectionData(s *SectionHeader) []byte {
	if img == nil || s == nil || img.Data == nil {
		return nil
	}
	start := s.Offset
	end := s.Offset + s.Size
	if end < start || end > uint64(len(img.Data)) {
		return nil
	}
	return img.Data[int(start):int(end)]
}

// Report writes a human-readable summary of the archive.
func (img *Image) Report(w io.Writer, verbose bool) error {
	h := img.Header
	fmt.Fprintf(w, "Magic:                   %s\n", h.MagicString())
	fmt.Fprintf(w, "Version:                 %s\n", h.VersionString())
	fmt.Fprintf(w, "Mode:                    %d\n", h.Mode)
	fmt.Fprintf(w, "Image UUID:              %s\n", fixedToHex(h.ImageUUID[:]))
	fmt.Fprintf(w, "Feature ROM UUID:        %s\n", fixedToHex(h.ROMUUID[:]))
	fmt.Fprintf(w, "Feature ROM timestamp:   %d\n", h.FeatureRomTimeStamp)
	fmt.Fprintf(w, "Platform VBNV:           %s\n", h.PlatformName())
	fmt.Fprintf(w, "Time stamp:              %d\n", h.TimeStamp)
	fmt.Fprintf(w, "Action mask:             0x%x\n", h.ActionMask)
	fmt.Fprintf(w, "Length:                  %d\n", h.Length)
	fmt.Fprintf(w, "Sections:                %d\n", h.NumSections)
	if !verbose {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tINDEX\tOFFSET\tSIZE")
	for i := range img.Sections {
		s := &img.Sections[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t0x%x\t0x%x\n",
			SectionKind(s.Kind).String(), trimFixed(s.Name[:]), trimFixed(s.IndexName[:]), s.Offset, s.Size)
	}
	return tw.Flush()
}
