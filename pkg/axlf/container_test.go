package axlf

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

const ipLayoutDoc = `{
    "ip_layout": {
        "m_ip_data": [
            {
                "m_type": "IP_KERNEL",
                "properties": "0x0",
                "m_base_address": "0x1000",
                "m_name": "vadd:vadd_1"
            },
            {
                "m_type": "IP_MEM_HBM",
                "properties": "0x2",
                "m_base_address": "not_used",
                "m_name": "HBM[0]"
            }
        ]
    }
}`

const memTopologyDoc = `{
    "mem_topology": {
        "m_mem_data": [
            {
                "m_type": "MEM_DDR4",
                "m_used": "1",
                "m_sizeKB": "0x1000000",
                "m_base_address": "0x0",
                "m_tag": "DDR[0]"
            }
        ]
    }
}`

const buildMetadataDoc = `{
    "build_metadata": {
        "dsa": {
            "feature_roms": [
                {
                    "timeSinceEpoch": "1561521217",
                    "uuid": "1b0ab8354c854962a0b0507e2c1dcb2e",
                    "vbnvName": "xilinx_u250_xdma_201830_2"
                }
            ]
        }
    }
}`

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func mustAdd(t *testing.T, c *Container, encoded string) {
	t.Helper()
	d, err := ParseDescriptor(encoded)
	if err != nil {
		t.Fatalf("parse descriptor %q: %v", encoded, err)
	}
	if err := c.AddSection(d); err != nil {
		t.Fatalf("add section %q: %v", encoded, err)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	bitPath := writeTemp(t, dir, "design.bit", "raw bitstream payload bytes")
	ipPath := writeTemp(t, dir, "ip_layout.json", ipLayoutDoc)
	memPath := writeTemp(t, dir, "mem_topology.json", memTopologyDoc)

	c := New(nil)
	mustAdd(t, c, "BITSTREAM:RAW:"+bitPath)
	mustAdd(t, c, "IP_LAYOUT:JSON:"+ipPath)
	mustAdd(t, c, "MEM_TOPOLOGY:JSON:"+memPath)

	out := filepath.Join(dir, "design.xclbin")
	if err := c.WriteToFile(out, false); err != nil {
		t.Fatalf("write image: %v", err)
	}

	rc := New(nil)
	if err := rc.ReadFromFile(out, false); err != nil {
		t.Fatalf("read image: %v", err)
	}
	if rc.Header != c.Header {
		t.Fatalf("header mismatch after round trip")
	}
	if len(rc.Sections()) != 3 {
		t.Fatalf("section count: got %d want 3", len(rc.Sections()))
	}
	for i, sec := range rc.Sections() {
		want := c.Sections()[i]
		if sec.Kind() != want.Kind() || sec.Size() != want.Size() || sec.Name() != want.Name() {
			t.Fatalf("section %d mismatch: got %s/%s/%d want %s/%s/%d",
				i, sec.Kind(), sec.Name(), sec.Size(), want.Kind(), want.Name(), want.Size())
		}
	}

	raw := rc.FindSection(KindBitstream, "")
	if raw == nil {
		t.Fatalf("missing bitstream section")
	}
	var buf bytes.Buffer
	if err := raw.Dump(&buf, FTRaw); err != nil {
		t.Fatalf("dump bitstream: %v", err)
	}
	if buf.String() != "raw bitstream payload bytes" {
		t.Fatalf("bitstream payload mismatch: %q", buf.String())
	}
}

func TestWrittenImageSatisfiesAlignment(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Odd-length payloads force padding between sections.
	bitPath := writeTemp(t, dir, "design.bit", strings.Repeat("x", 13))
	mdPath := writeTemp(t, dir, "md.xml", strings.Repeat("y", 7))

	c := New(nil)
	mustAdd(t, c, "BITSTREAM:RAW:"+bitPath)
	mustAdd(t, c, "EMBEDDED_METADATA:RAW:"+mdPath)

	out := filepath.Join(dir, "design.xclbin")
	if err := c.WriteToFile(out, true); err != nil {
		t.Fatalf("write image: %v", err)
	}

	// OpenImage rejects images with unaligned offsets or a bad length.
	img, err := OpenImage(out)
	if err != nil {
		t.Fatalf("open image: %v", err)
	}
	defer func() { _ = img.Close() }()

	st, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if img.Header.Length != uint64(st.Size()) {
		t.Fatalf("header length %d does not match file size %d", img.Header.Length, st.Size())
	}
	sh := img.Section(KindBitstream, "")
	if sh == nil {
		t.Fatalf("missing bitstream section header")
	}
	if got := img.SectionData(sh); string(got) != strings.Repeat("x", 13) {
		t.Fatalf("bitstream payload via image view: %q", got)
	}
}

func TestSkipUUIDKeepsHeaderStable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	mustAdd(t, c, "IP_LAYOUT:JSON:"+writeTemp(t, dir, "ip.json", ipLayoutDoc))

	before := c.Header
	if err := c.WriteToFile(filepath.Join(dir, "a.xclbin"), true); err != nil {
		t.Fatalf("write image: %v", err)
	}
	after := c.Header
	// Only the total image length may change on a skip-UUID write.
	after.Length = before.Length
	if before != after {
		t.Fatalf("header changed beyond length on skip-UUID write")
	}

	if err := c.WriteToFile(filepath.Join(dir, "b.xclbin"), false); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if c.Header.ImageUUID == before.ImageUUID {
		t.Fatalf("image UUID was not refreshed")
	}
}

func TestMigrateFromMirror(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	mustAdd(t, c, "IP_LAYOUT:JSON:"+writeTemp(t, dir, "ip.json", ipLayoutDoc))
	mustAdd(t, c, "MEM_TOPOLOGY:JSON:"+writeTemp(t, dir, "mem.json", memTopologyDoc))

	out := filepath.Join(dir, "design.xclbin")
	if err := c.WriteToFile(out, true); err != nil {
		t.Fatalf("write image: %v", err)
	}

	mc := New(nil)
	if err := mc.ReadFromFile(out, true); err != nil {
		t.Fatalf("migrate read: %v", err)
	}
	if mc.Header.NumSections != 2 {
		t.Fatalf("migrated section count: got %d", mc.Header.NumSections)
	}
	if mc.Header.ImageUUID != c.Header.ImageUUID {
		t.Fatalf("migrated image UUID mismatch")
	}
	for i, sec := range mc.Sections() {
		want := c.Sections()[i]
		if sec.Kind() != want.Kind() || sec.Size() != want.Size() {
			t.Fatalf("migrated section %d mismatch", i)
		}
	}
}

func TestMirrorErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	noMirror := writeTemp(t, dir, "none.bin", "no markers here at all")
	c := New(nil)
	if err := c.ReadFromFile(noMirror, true); !errors.Is(err, ErrMissingMirror) {
		t.Fatalf("expected ErrMissingMirror, got %v", err)
	}

	truncated := writeTemp(t, dir, "trunc.bin", "XCLBIN_MIRROR_DATA_START{\"header\":")
	if err := c.ReadFromFile(truncated, true); !errors.Is(err, ErrMalformedMirror) {
		t.Fatalf("expected ErrMalformedMirror, got %v", err)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	bad := writeTemp(t, dir, "bad.bin", strings.Repeat("z", HeaderSize+10))
	c := New(nil)
	if err := c.ReadFromFile(bad, false); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}

	small := writeTemp(t, dir, "small.bin", "tiny")
	if err := c.ReadFromFile(small, false); !errors.Is(err, ErrCorruptImage) {
		t.Fatalf("expected ErrCorruptImage, got %v", err)
	}
}

func TestAddDuplicateSection(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ipPath := writeTemp(t, dir, "ip.json", ipLayoutDoc)

	c := New(nil)
	mustAdd(t, c, "IP_LAYOUT:JSON:"+ipPath)

	d, err := ParseDescriptor("IP_LAYOUT:JSON:" + ipPath)
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if err := c.AddSection(d); !errors.Is(err, ErrSectionExists) {
		t.Fatalf("expected ErrSectionExists, got %v", err)
	}
}

func TestRemoveSectionIndexRules(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	mustAdd(t, c, "BITSTREAM:RAW:"+writeTemp(t, dir, "design.bit", "payload"))

	if err := c.RemoveSection("SOFT_KERNEL"); !errors.Is(err, ErrIndexRequired) {
		t.Fatalf("expected ErrIndexRequired, got %v", err)
	}
	if err := c.RemoveSection("BITSTREAM[kernel0]"); !errors.Is(err, ErrIndexForbidden) {
		t.Fatalf("expected ErrIndexForbidden, got %v", err)
	}
	if err := c.RemoveSection("IP_LAYOUT"); !errors.Is(err, ErrMissingSection) {
		t.Fatalf("expected ErrMissingSection, got %v", err)
	}
	if err := c.RemoveSection("BITSTREAM"); err != nil {
		t.Fatalf("remove bitstream: %v", err)
	}
	if len(c.Sections()) != 0 || c.Header.NumSections != 0 {
		t.Fatalf("section list not empty after removal")
	}
}

func TestReplaceSection(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	mustAdd(t, c, "BITSTREAM:RAW:"+writeTemp(t, dir, "v1.bit", "first"))

	d, err := ParseDescriptor("BITSTREAM:RAW:" + writeTemp(t, dir, "v2.bit", "second payload"))
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if err := c.ReplaceSection(d); err != nil {
		t.Fatalf("replace section: %v", err)
	}
	sec := c.FindSection(KindBitstream, "")
	if sec.Size() != uint64(len("second payload")) {
		t.Fatalf("replaced size: got %d", sec.Size())
	}
	if sec.Name() != "v2" {
		t.Fatalf("replaced name: got %q", sec.Name())
	}

	missing, _ := ParseDescriptor("IP_LAYOUT:JSON:" + writeTemp(t, dir, "ip.json", ipLayoutDoc))
	if err := c.ReplaceSection(missing); !errors.Is(err, ErrMissingSection) {
		t.Fatalf("expected ErrMissingSection, got %v", err)
	}
}

func TestDumpAndReaddIPLayout(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	mustAdd(t, c, "IP_LAYOUT:JSON:"+writeTemp(t, dir, "ip.json", ipLayoutDoc))
	origSize := c.FindSection(KindIPLayout, "").Size()

	dumpPath := filepath.Join(dir, "dump.json")
	d, err := ParseDescriptor("IP_LAYOUT:JSON:" + dumpPath)
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if err := c.DumpSection(d); err != nil {
		t.Fatalf("dump section: %v", err)
	}

	rc := New(nil)
	mustAdd(t, rc, "IP_LAYOUT:JSON:"+dumpPath)
	if got := rc.FindSection(KindIPLayout, "").Size(); got != origSize {
		t.Fatalf("re-added size: got %d want %d", got, origSize)
	}
}

func TestDumpFormatErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	mustAdd(t, c, "IP_LAYOUT:JSON:"+writeTemp(t, dir, "ip.json", ipLayoutDoc))

	d, err := ParseDescriptor("IP_LAYOUT:BOGUS:" + filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if err := c.DumpSection(d); !errors.Is(err, ErrFormatUnsupported) {
		t.Fatalf("expected ErrFormatUnsupported for unknown format, got %v", err)
	}

	d, err = ParseDescriptor("IP_LAYOUT::" + filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if err := c.DumpSection(d); !errors.Is(err, ErrBadDescriptor) {
		t.Fatalf("expected ErrBadDescriptor for missing format, got %v", err)
	}
}

func TestWildcardAddAndDump(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	combined := `{
    "schema_version": { "major": "1", "minor": "0", "patch": "0" },
    "ip_layout": ` + mustNode(t, ipLayoutDoc, "ip_layout") + `,
    "mem_topology": ` + mustNode(t, memTopologyDoc, "mem_topology") + `
}`
	inPath := writeTemp(t, dir, "all.json", combined)

	c := New(nil)
	d := Descriptor{Format: FTJSON, File: inPath}
	if err := c.AddSections(d); err != nil {
		t.Fatalf("wildcard add: %v", err)
	}
	if len(c.Sections()) != 2 {
		t.Fatalf("wildcard add created %d sections, want 2", len(c.Sections()))
	}
	// Top-level key order of the input file decides section order.
	if c.Sections()[0].Kind() != KindIPLayout || c.Sections()[1].Kind() != KindMemTopology {
		t.Fatalf("section order not preserved: %s, %s", c.Sections()[0].Kind(), c.Sections()[1].Kind())
	}

	outPath := filepath.Join(dir, "all_out.json")
	if err := c.DumpSections(Descriptor{Format: FTJSON, File: outPath}); err != nil {
		t.Fatalf("wildcard dump: %v", err)
	}

	rc := New(nil)
	if err := rc.AddSections(Descriptor{Format: FTJSON, File: outPath}); err != nil {
		t.Fatalf("re-add from wildcard dump: %v", err)
	}
	for i, sec := range rc.Sections() {
		want := c.Sections()[i]
		if sec.Kind() != want.Kind() || sec.Size() != want.Size() {
			t.Fatalf("section %d differs after dump/re-add cycle", i)
		}
	}
}

func TestAppendSectionsAllowList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// IP_LAYOUT may be created by an append, MEM_TOPOLOGY may not.
	ipOnly := writeTemp(t, dir, "append_ip.json", ipLayoutDoc)
	c := New(nil)
	if err := c.AppendSections(Descriptor{Format: FTJSON, File: ipOnly}); err != nil {
		t.Fatalf("append creating IP_LAYOUT: %v", err)
	}
	if c.FindSection(KindIPLayout, "") == nil {
		t.Fatalf("append did not create IP_LAYOUT")
	}

	memOnly := writeTemp(t, dir, "append_mem.json", memTopologyDoc)
	if err := c.AppendSections(Descriptor{Format: FTJSON, File: memOnly}); !errors.Is(err, ErrMissingSection) {
		t.Fatalf("expected ErrMissingSection for append to absent MEM_TOPOLOGY, got %v", err)
	}
}

func TestMergeSection(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	kvDoc := `{"keyvalue_metadata": {"key_values": [{"key": "a", "value": "1"}]}}`
	kvMore := `{"keyvalue_metadata": {"key_values": [{"key": "b", "value": "2"}]}}`

	c := New(nil)
	d, err := ParseDescriptor("KEYVALUE_METADATA:JSON:" + writeTemp(t, dir, "kv.json", kvDoc))
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	// First merge creates the section.
	if err := c.MergeSection(d); err != nil {
		t.Fatalf("merge (create): %v", err)
	}
	d, err = ParseDescriptor("KEYVALUE_METADATA:JSON:" + writeTemp(t, dir, "kv2.json", kvMore))
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if err := c.MergeSection(d); err != nil {
		t.Fatalf("merge (existing): %v", err)
	}

	sec := c.FindSection(KindKeyValueMetadata, "")
	meta, err := loadKeyValues(sec)
	if err != nil {
		t.Fatalf("load key values: %v", err)
	}
	if len(meta.KeyValues) != 1 || meta.KeyValues[0].Key != "b" {
		// A merge replaces matching top-level object keys wholesale.
		t.Fatalf("merged key values: %+v", meta.KeyValues)
	}
}

func TestUserKeyValueUpsert(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if err := c.SetKeyValue("USER:vendor:acme"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if err := c.SetKeyValue("USER:vendor:initech"); err != nil {
		t.Fatalf("update key: %v", err)
	}
	if err := c.SetKeyValue("USER:board:vcu1525"); err != nil {
		t.Fatalf("set second key: %v", err)
	}

	sec := c.FindSection(KindKeyValueMetadata, "")
	if sec == nil {
		t.Fatalf("key-value section was not created")
	}
	meta, err := loadKeyValues(sec)
	if err != nil {
		t.Fatalf("load key values: %v", err)
	}
	if len(meta.KeyValues) != 2 {
		t.Fatalf("key count: got %d want 2", len(meta.KeyValues))
	}
	if meta.KeyValues[0].Key != "vendor" || meta.KeyValues[0].Value != "initech" {
		t.Fatalf("upsert did not replace in place: %+v", meta.KeyValues)
	}

	if err := c.RemoveKey("vendor"); err != nil {
		t.Fatalf("remove key: %v", err)
	}
	if err := c.RemoveKey("vendor"); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestSysKeyValues(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if err := c.SetKeyValue("SYS:mode:hw_emu"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if c.Header.Mode != uint16(ModeHWEmu) {
		t.Fatalf("mode: got %d", c.Header.Mode)
	}
	if err := c.SetKeyValue("SYS:mode:hw_pr"); err != nil {
		t.Fatalf("set mode hw_pr: %v", err)
	}
	if c.Header.Mode != uint16(ModePR) {
		t.Fatalf("mode hw_pr: got %d", c.Header.Mode)
	}
	// Mode tokens are lowercase and matched case-sensitively.
	if err := c.SetKeyValue("SYS:mode:PR"); !errors.Is(err, ErrBadDescriptor) {
		t.Fatalf("expected ErrBadDescriptor for mode PR, got %v", err)
	}
	if err := c.SetKeyValue("SYS:mode:HW_EMU"); !errors.Is(err, ErrBadDescriptor) {
		t.Fatalf("expected ErrBadDescriptor for upper-case mode, got %v", err)
	}
	if err := c.SetKeyValue("SYS:action_mask:LOAD_AIE"); err != nil {
		t.Fatalf("set action mask: %v", err)
	}
	if c.Header.ActionMask != ActionMaskLoadAIE {
		t.Fatalf("action mask: got %#x", c.Header.ActionMask)
	}
	if err := c.SetKeyValue("SYS:FeatureRomTimestamp:1561521217"); err != nil {
		t.Fatalf("set rom timestamp: %v", err)
	}
	if c.Header.FeatureRomTimeStamp != 1561521217 {
		t.Fatalf("rom timestamp: got %d", c.Header.FeatureRomTimeStamp)
	}
	if err := c.SetKeyValue("SYS:PlatformVBNV:xilinx_u250_xdma_201830_2"); err != nil {
		t.Fatalf("set vbnv: %v", err)
	}
	if c.Header.PlatformName() != "xilinx_u250_xdma_201830_2" {
		t.Fatalf("vbnv: got %q", c.Header.PlatformName())
	}
	if err := c.SetKeyValue("SYS:mode:NOT_A_MODE"); !errors.Is(err, ErrBadDescriptor) {
		t.Fatalf("expected ErrBadDescriptor for bad mode, got %v", err)
	}
	if err := c.SetKeyValue("SYS:nope:1"); !errors.Is(err, ErrBadDescriptor) {
		t.Fatalf("expected ErrBadDescriptor for unknown SYS key, got %v", err)
	}
}

func TestBuildMetadataHeaderPropagation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	mustAdd(t, c, "BUILD_METADATA:JSON:"+writeTemp(t, dir, "build.json", buildMetadataDoc))

	if c.Header.FeatureRomTimeStamp != 1561521217 {
		t.Fatalf("rom timestamp not propagated: got %d", c.Header.FeatureRomTimeStamp)
	}
	if got := fixedToHex(c.Header.ROMUUID[:]); got != "1b0ab8354c854962a0b0507e2c1dcb2e" {
		t.Fatalf("rom UUID not propagated: got %s", got)
	}
	if got := c.Header.PlatformName(); got != "xilinx_u250_xdma_201830_2" {
		t.Fatalf("platform VBNV not propagated: got %q", got)
	}
}

func TestAddPSKernel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	libPath := writeTemp(t, dir, "libvadd.so", "ELF-ish bytes")

	c := New(nil)
	if err := c.AddPSKernel("vadd:4:" + libPath); err != nil {
		t.Fatalf("add PS kernel: %v", err)
	}
	sec := c.FindSection(KindSoftKernel, "vadd")
	if sec == nil {
		t.Fatalf("missing soft kernel section")
	}
	if !sec.SubSectionExists(SubSectionObj) || !sec.SubSectionExists(SubSectionMetadata) {
		t.Fatalf("soft kernel sub-sections incomplete")
	}

	var obj bytes.Buffer
	if err := sec.DumpSubSection(&obj, SubSectionObj, FTRaw); err != nil {
		t.Fatalf("dump OBJ: %v", err)
	}
	if obj.String() != "ELF-ish bytes" {
		t.Fatalf("OBJ payload mismatch: %q", obj.String())
	}

	if err := c.AddPSKernel("vadd:2:" + libPath); !errors.Is(err, ErrSectionExists) {
		t.Fatalf("expected ErrSectionExists for duplicate symbol, got %v", err)
	}
}

func TestSoftKernelSurvivesBinaryRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	libPath := writeTemp(t, dir, "libscale.so", "object-code")

	c := New(nil)
	if err := c.AddPSKernel("scale:1:" + libPath); err != nil {
		t.Fatalf("add PS kernel: %v", err)
	}

	out := filepath.Join(dir, "ps.xclbin")
	if err := c.WriteToFile(out, true); err != nil {
		t.Fatalf("write image: %v", err)
	}
	rc := New(nil)
	if err := rc.ReadFromFile(out, false); err != nil {
		t.Fatalf("read image: %v", err)
	}
	sec := rc.FindSection(KindSoftKernel, "scale")
	if sec == nil {
		t.Fatalf("soft kernel lost in round trip")
	}
	var obj bytes.Buffer
	if err := sec.DumpSubSection(&obj, SubSectionObj, FTRaw); err != nil {
		t.Fatalf("dump OBJ: %v", err)
	}
	if obj.String() != "object-code" {
		t.Fatalf("OBJ payload after round trip: %q", obj.String())
	}
}

// mustNode extracts one top-level node from a JSON document literal.
func mustNode(t *testing.T, doc, key string) string {
	t.Helper()
	node, err := extractNode([]byte(doc), key)
	if err != nil || node == nil {
		t.Fatalf("extract %q: %v", key, err)
	}
	return string(node)
}

func TestMarshalOrderedEmitsValidJSON(t *testing.T) {
	t.Parallel()

	entries := []jsonEntry{
		{Key: "zeta", Value: json.RawMessage("{\n    \"b\": \"2\"\n}")},
		{Key: "alpha", Value: json.RawMessage(`["1", "2"]`)},
	}
	out, err := marshalOrdered(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !json.Valid(out) {
		t.Fatalf("document is not valid JSON: %s", out)
	}
	want := `{"zeta":{"b":"2"},"alpha":["1","2"]}`
	if string(out) != want {
		t.Fatalf("document: got %s, want %s", out, want)
	}
}

func TestFailedAddLeavesContainerUnchanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	bad := writeTemp(t, dir, "build.json",
		`{"build_metadata": {"dsa": {"feature_roms": [{"timeSinceEpoch": "not-a-number"}]}}}`)

	c := New(nil)
	before := c.Header
	d, err := ParseDescriptor("BUILD_METADATA:JSON:" + bad)
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if err := c.AddSection(d); err == nil {
		t.Fatalf("expected error for non-numeric build timestamp")
	}
	if n := len(c.Sections()); n != 0 {
		t.Fatalf("sections after failed add: got %d, want 0", n)
	}
	if c.Header != before {
		t.Fatalf("header changed by a failed add")
	}
}

func TestFailedAppendLeavesContainerUnchanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	bad := writeTemp(t, dir, "append.json",
		`{"ip_layout": {"m_ip_data": [{"m_type": "IP_BOGUS", "m_name": "x"}]}}`)

	c := New(nil)
	if err := c.AppendSections(Descriptor{Format: FTJSON, File: bad}); err == nil {
		t.Fatalf("expected error for unknown IP type")
	}
	if n := len(c.Sections()); n != 0 {
		t.Fatalf("sections after failed append: got %d, want 0", n)
	}
	if c.Header.NumSections != 0 {
		t.Fatalf("section count after failed append: got %d, want 0", c.Header.NumSections)
	}
}

func TestWriteErrorLeavesNoFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c := New(nil)
	out := filepath.Join(dir, "missing", "image.xclbin")
	if err := c.WriteToFile(out, true); err == nil {
		t.Fatalf("expected error writing into a missing directory")
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no file at %s, stat: %v", out, err)
	}
}
