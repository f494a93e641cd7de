// Package axlf implements the AXLF device-image container format.
//
// An AXLF image is a single file composed of a fixed header, an array of
// section headers, the 8-byte aligned section payloads, and a trailing JSON
// "mirror" snapshot that makes the image self-describing for migration and
// inspection without the original build tool.
package axlf

import (
	"fmt"
	"strconv"
	"strings"
)

// AXLF global constants must never change.
const (
	// Magic is the 7-byte file magic for all AXLF containers.
	Magic = "xclbin2"

	// Alignment of every section payload, measured from file start.
	Alignment = 8

	KeyBlockBytes     = 256
	PlatformVBNVBytes = 64
	DebugBinBytes     = 16
	SectionNameBytes  = 16
	UUIDBytes         = 16
)

// Fixed on-disk sizes, little-endian. Verified against binary.Size in tests.
const (
	HeaderSize        = 432
	SectionHeaderSize = 56
)

// ToolVersion is stamped into the header of freshly created containers.
// It may be overridden via -ldflags.
var ToolVersion = "2.1.0"

// Header is the fixed-size container header. All multi-byte fields are
// little-endian on disk. Blank fields are zero padding.
type Header struct {
	Magic               [8]byte // 7-byte magic + NUL
	SignatureLength     int32   // -1 when the image is unsigned
	Reserved            [4]byte // 0xFF-filled when unsigned
	KeyBlock            [KeyBlockBytes]byte
	UniqueID            uint64
	TimeStamp           uint64
	FeatureRomTimeStamp uint64
	VersionMajor        uint8
	VersionMinor        uint8
	VersionPatch        uint16
	Mode                uint16
	_                   [2]byte
	Length              uint64 // total file length, finalized after the full image is emitted
	ROMUUID             [UUIDBytes]byte
	ImageUUID           [UUIDBytes]byte
	PlatformVBNV        [PlatformVBNVBytes]byte
	DebugBin            [DebugBinBytes]byte
	ActionMask          uint32
	NumSections         uint32
}

// SectionHeader is one fixed-size on-disk record of the section header array
// that immediately follows the main header.
type SectionHeader struct {
	Kind      uint32
	Name      [SectionNameBytes]byte
	IndexName [SectionNameBytes]byte
	_         [4]byte
	Offset    uint64
	Size      uint64
}

// Mode identifies how the image is meant to be consumed.
type Mode uint16

const (
	ModeFlat Mode = iota
	ModePR
	ModeTandemStage2
	ModeTandemStage2WithPR
	ModeHWEmu
	ModeSWEmu
	ModeHWEmuPR
)

// Action mask bits.
const (
	ActionMaskLoadAIE uint32 = 1 << 0
)

func (h *Header) Valid() bool {
	return trimFixed(h.Magic[:]) == Magic
}

func (h *Header) MagicString() string {
	return trimFixed(h.Magic[:])
}

func (h *Header) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", h.VersionMajor, h.VersionMinor, h.VersionPatch)
}

func (h *Header) PlatformName() string {
	return trimFixed(h.PlatformVBNV[:])
}

func (h *Header) DebugBinName() string {
	return trimFixed(h.DebugBin[:])
}

// ParseVersion accepts either a bare patch number ("123") or a full
// dotted triple ("2.1.0"). The two-token form is rejected.
func ParseVersion(s string) (major, minor uint8, patch uint16, err error) {
	tokens := strings.Split(s, ".")
	switch len(tokens) {
	case 1:
		p, perr := strconv.ParseUint(tokens[0], 10, 16)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("axlf: invalid version %q: %w", s, perr)
		}
		return 0, 0, uint16(p), nil
	case 3:
		ma, e1 := strconv.ParseUint(tokens[0], 10, 8)
		mi, e2 := strconv.ParseUint(tokens[1], 10, 8)
		pa, e3 := strconv.ParseUint(tokens[2], 10, 16)
		if e1 != nil || e2 != nil || e3 != nil {
			return 0, 0, 0, fmt.Errorf("axlf: invalid version %q", s)
		}
		return uint8(ma), uint8(mi), uint16(pa), nil
	default:
		return 0, 0, 0, fmt.Errorf("axlf: invalid version %q: expected <patch> or <major>.<minor>.<patch>", s)
	}
}

// Logger is the minimal logging surface the container engine needs. It is
// satisfied by internal/logger.Logger and by *slog.Logger-style wrappers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
