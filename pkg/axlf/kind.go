package axlf

import "fmt"

// SectionKind is the enum discriminator identifying a section's semantic
// role. Values are part of the on-disk format and must never change.
type SectionKind uint32

const (
	KindBitstream         SectionKind = 0
	KindEmbeddedMetadata  SectionKind = 2
	KindDebugData         SectionKind = 4
	KindMemTopology       SectionKind = 6
	KindConnectivity      SectionKind = 7
	KindIPLayout          SectionKind = 8
	KindClockFreqTopology SectionKind = 11
	KindBuildMetadata     SectionKind = 14
	KindKeyValueMetadata  SectionKind = 15
	KindUserMetadata      SectionKind = 16
	KindPartitionMetadata SectionKind = 20
	KindSoftKernel        SectionKind = 24
)

type formatSet map[FormatType]bool

// kindInfo is one row of the static kind registry. The string name, the
// JSON key name, and the enum value form three namespaces that must agree
// deterministically; bijectivity is checked at package init.
type kindInfo struct {
	kind        SectionKind
	name        string
	jsonKey     string // "" when the kind has no JSON image
	factory     func(kind SectionKind, indexName string) Section
	addFormats  formatSet
	dumpFormats formatSet

	supportsIndex       bool
	supportsSubSections bool

	// allowEmptyRaw permits a zero-size payload after a RAW add.
	allowEmptyRaw bool

	// appendCreates marks kinds that an append operation may synthesize
	// from partial metadata when the target section is absent.
	appendCreates bool
}

var kindTable = []kindInfo{
	{
		kind: KindBitstream, name: "BITSTREAM",
		factory:     newRawSection,
		addFormats:  formatSet{FTRaw: true},
		dumpFormats: formatSet{FTRaw: true},
	},
	{
		kind: KindEmbeddedMetadata, name: "EMBEDDED_METADATA",
		factory:     newRawSection,
		addFormats:  formatSet{FTRaw: true},
		dumpFormats: formatSet{FTRaw: true, FTTxt: true, FTHTML: true},
	},
	{
		kind: KindDebugData, name: "DEBUG_DATA",
		factory:       newRawSection,
		addFormats:    formatSet{FTRaw: true},
		dumpFormats:   formatSet{FTRaw: true},
		allowEmptyRaw: true,
	},
	{
		kind: KindMemTopology, name: "MEM_TOPOLOGY", jsonKey: "mem_topology",
		factory:     newMemTopologySection,
		addFormats:  formatSet{FTJSON: true},
		dumpFormats: formatSet{FTJSON: true, FTRaw: true},
	},
	{
		kind: KindConnectivity, name: "CONNECTIVITY", jsonKey: "connectivity",
		factory:     newConnectivitySection,
		addFormats:  formatSet{FTJSON: true},
		dumpFormats: formatSet{FTJSON: true, FTRaw: true},
	},
	{
		kind: KindIPLayout, name: "IP_LAYOUT", jsonKey: "ip_layout",
		factory:       newIPLayoutSection,
		addFormats:    formatSet{FTJSON: true},
		dumpFormats:   formatSet{FTJSON: true, FTRaw: true},
		appendCreates: true,
	},
	{
		kind: KindClockFreqTopology, name: "CLOCK_FREQ_TOPOLOGY", jsonKey: "clock_freq_topology",
		factory:     newClockFreqSection,
		addFormats:  formatSet{FTJSON: true},
		dumpFormats: formatSet{FTJSON: true, FTRaw: true},
	},
	{
		kind: KindBuildMetadata, name: "BUILD_METADATA", jsonKey: "build_metadata",
		factory:     newOpaqueJSONSection,
		addFormats:  formatSet{FTJSON: true},
		dumpFormats: formatSet{FTJSON: true},
	},
	{
		kind: KindKeyValueMetadata, name: "KEYVALUE_METADATA", jsonKey: "keyvalue_metadata",
		factory:     newOpaqueJSONSection,
		addFormats:  formatSet{FTJSON: true},
		dumpFormats: formatSet{FTJSON: true},
	},
	{
		kind: KindUserMetadata, name: "USER_METADATA",
		factory:     newRawSection,
		addFormats:  formatSet{FTRaw: true},
		dumpFormats: formatSet{FTRaw: true},
	},
	{
		kind: KindPartitionMetadata, name: "PARTITION_METADATA", jsonKey: "partition_metadata",
		factory:       newOpaqueJSONSection,
		addFormats:    formatSet{FTJSON: true},
		dumpFormats:   formatSet{FTJSON: true},
		appendCreates: true,
	},
	{
		kind: KindSoftKernel, name: "SOFT_KERNEL",
		factory:             newSoftKernelSection,
		addFormats:          formatSet{},
		dumpFormats:         formatSet{},
		supportsIndex:       true,
		supportsSubSections: true,
	},
}

var (
	kindByEnum    map[SectionKind]*kindInfo
	kindByName    map[string]*kindInfo
	kindByJSONKey map[string]*kindInfo
)

func init() {
	kindByEnum = make(map[SectionKind]*kindInfo, len(kindTable))
	kindByName = make(map[string]*kindInfo, len(kindTable))
	kindByJSONKey = make(map[string]*kindInfo, len(kindTable))

	for i := range kindTable {
		ki := &kindTable[i]
		if _, dup := kindByEnum[ki.kind]; dup {
			panic(fmt.Sprintf("axlf: duplicate section kind %d", ki.kind))
		}
		if _, dup := kindByName[ki.name]; dup {
			panic(fmt.Sprintf("axlf: duplicate section kind name %q", ki.name))
		}
		kindByEnum[ki.kind] = ki
		kindByName[ki.name] = ki
		if ki.jsonKey != "" {
			if _, dup := kindByJSONKey[ki.jsonKey]; dup {
				panic(fmt.Sprintf("axlf: duplicate section JSON key %q", ki.jsonKey))
			}
			kindByJSONKey[ki.jsonKey] = ki
		}
	}
}

func (k SectionKind) String() string {
	if ki, ok := kindByEnum[k]; ok {
		return ki.name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(k))
}

// JSONKey returns the JSON node name of the kind, or "" when the kind has
// no JSON image.
func (k SectionKind) JSONKey() string {
	if ki, ok := kindByEnum[k]; ok {
		return ki.jsonKey
	}
	return ""
}

// KindFromString resolves a case-sensitive section kind name.
func KindFromString(name string) (SectionKind, error) {
	ki, ok := kindByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return ki.kind, nil
}

// KindFromJSONKey resolves a top-level JSON node name to its kind.
func KindFromJSONKey(key string) (SectionKind, bool) {
	ki, ok := kindByJSONKey[key]
	if !ok {
		return 0, false
	}
	return ki.kind, true
}

// NewSection creates the concrete section variant for the given kind.
func NewSection(k SectionKind, indexName string) (Section, error) {
	ki, ok := kindByEnum[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint32(k))
	}
	return ki.factory(k, indexName), nil
}

func SupportsIndex(k SectionKind) bool {
	ki, ok := kindByEnum[k]
	return ok && ki.supportsIndex
}

func SupportsSubSections(k SectionKind) bool {
	ki, ok := kindByEnum[k]
	return ok && ki.supportsSubSections
}

func supportsAddFormat(k SectionKind, ft FormatType) bool {
	ki, ok := kindByEnum[k]
	return ok && ki.addFormats[ft]
}

func supportsDumpFormat(k SectionKind, ft FormatType) bool {
	ki, ok := kindByEnum[k]
	return ok && ki.dumpFormats[ft]
}

func allowsEmptyPayload(k SectionKind, ft FormatType) bool {
	ki, ok := kindByEnum[k]
	return ok && ki.allowEmptyRaw && ft == FTRaw
}

func appendMayCreate(k SectionKind) bool {
	ki, ok := kindByEnum[k]
	return ok && ki.appendCreates
}

// supportsJSONMirror reports whether the kind both reads and writes JSON,
// which is the condition for embedding a payload snapshot in the mirror.
func supportsJSONMirror(k SectionKind) bool {
	ki, ok := kindByEnum[k]
	return ok && ki.addFormats[FTJSON] && ki.dumpFormats[FTJSON]
}
