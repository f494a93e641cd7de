package axlf

import (
	"fmt"
	"strconv"
	"strings"
)

// Descriptor is the parsed form of a compact encoded operation string,
// immutable after parsing. Section targets follow the grammar
// <section>[<index>][-<subsection>]:<format>:<file>; the first two colons
// delimit, so the file field may itself contain colons (Windows paths).
type Descriptor struct {
	Section    string // kind name; empty for wildcard operations
	IndexName  string
	SubSection string
	Format     FormatType
	File       string

	original string
}

// Original returns the encoded string the descriptor was parsed from, for
// error reporting.
func (d Descriptor) Original() string { return d.original }

// ParseDescriptor parses `<section>[<index>][-<subsection>]:<format>:<file>`.
func ParseDescriptor(s string) (Descriptor, error) {
	parts, err := splitColon3(s)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: expected format <section>:<format>:<file>, received %q", ErrBadDescriptor, s)
	}
	name, index, sub, err := parseSectionTarget(parts[0])
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Section:    name,
		IndexName:  index,
		SubSection: sub,
		Format:     ParseFormatType(parts[1]),
		File:       parts[2],
		original:   s,
	}, nil
}

// ParseKeyValue parses `<SYS|USER>:<key>:<value>`. The domain is folded to
// upper case; key and value are taken verbatim (the value may contain colons).
func ParseKeyValue(s string) (domain, key, value string, err error) {
	parts, perr := splitColon3(s)
	if perr != nil {
		return "", "", "", fmt.Errorf("%w: expected format [USER | SYS]:<key>:<value>, received %q", ErrBadDescriptor, s)
	}
	return strings.ToUpper(parts[0]), parts[1], parts[2], nil
}

// ParsePSKernel parses `<symbol_name>:<instances>:<path_to_library>`.
// The library path may contain colons.
func ParsePSKernel(s string) (symbol string, instances uint32, library string, err error) {
	parts, perr := splitColon3(s)
	if perr != nil {
		return "", 0, "", fmt.Errorf("%w: expected format <symbol_name>:<instances>:<path_to_shared_library>, received %q", ErrBadDescriptor, s)
	}
	n, perr := strconv.ParseUint(parts[1], 10, 32)
	if perr != nil {
		return "", 0, "", fmt.Errorf("%w: invalid instance count %q in %q", ErrBadDescriptor, parts[1], s)
	}
	return parts[0], uint32(n), parts[2], nil
}

// splitColon3 splits on the first two colons only; the final field keeps
// any remaining colons. Fewer than three fields is an error.
func splitColon3(s string) ([3]string, error) {
	first := strings.IndexByte(s, ':')
	if first < 0 {
		return [3]string{}, fmt.Errorf("expected 3 colon-delimited fields in %q", s)
	}
	rest := s[first+1:]
	second := strings.IndexByte(rest, ':')
	if second < 0 {
		return [3]string{}, fmt.Errorf("expected 3 colon-delimited fields in %q", s)
	}
	return [3]string{s[:first], rest[:second], rest[second+1:]}, nil
}

// parseSectionTarget parses `<section>[<index>][-<subsection>]`.
func parseSectionTarget(s string) (name, index, sub string, err error) {
	if i := strings.IndexByte(s, '['); i >= 0 {
		name = s[:i]
		rest := s[i+1:]
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			return "", "", "", fmt.Errorf("%w: expected format <section>[<index>], received %q", ErrBadDescriptor, s)
		}
		index = rest[:j]
		tail := rest[j+1:]
		if tail != "" {
			if !strings.HasPrefix(tail, "-") {
				return "", "", "", fmt.Errorf("%w: unexpected trailing %q in section target %q", ErrBadDescriptor, tail, s)
			}
			sub = tail[1:]
		}
		return name, index, sub, nil
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i], "", s[i+1:], nil
	}
	return s, "", "", nil
}
