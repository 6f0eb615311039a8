package machofile

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"os"
	"slices"
)

// LoadCommand is one raw load command of a slice.
type LoadCommand struct {
	Cmd macho.LoadCmd
	// Offset is relative to the start of the slice.
	Offset int
	Raw    []byte
	// Name is the dylib name or rpath carried by the command, if any.
	Name string
}

// Slice is one architecture image. A thin file has exactly one slice
// starting at offset zero.
type Slice struct {
	Offset    int64
	Size      int64
	Cpu       macho.Cpu
	SubCpu    uint32
	Type      macho.Type
	Is64      bool
	ByteOrder binary.ByteOrder
	Commands  []LoadCommand

	sizeofcmds int
	// loadLimit is the first slice offset occupied by segment or section data.
	loadLimit int
}

// File is a parsed Mach-O file.
type File struct {
	Fat    bool
	Slices []*Slice
}

// Sniff reports whether header starts with a Mach-O or universal magic.
func Sniff(header []byte) bool {
	if len(header) < 4 {
		return false
	}

	le := binary.LittleEndian.Uint32(header)
	be := binary.BigEndian.Uint32(header)

	switch {
	case le == macho.Magic32, le == macho.Magic64, be == macho.Magic32, be == macho.Magic64:
		return true
	case be == macho.MagicFat, be == magicFat64:
		return len(header) < 8 || plausibleFatCount(binary.BigEndian.Uint32(header[4:]))
	}

	return false
}

func plausibleFatCount(n uint32) bool {
	return n > 0 && n <= maxFatArches
}

// ReadFile reads and parses the file at path.
func ReadFile(path string) (*File, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}

	return f, data, nil
}

// Parse parses a thin or universal Mach-O image held in data.
func Parse(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, ErrNotMachO
	}

	switch binary.BigEndian.Uint32(data) {
	case macho.MagicFat:
		return parseFat(data, false)
	case magicFat64:
		return parseFat(data, true)
	}

	s, err := parseSlice(data, 0, int64(len(data)))
	if err != nil {
		return nil, err
	}

	return &File{Slices: []*Slice{s}}, nil
}

func parseFat(data []byte, wide bool) (*File, error) {
	n := binary.BigEndian.Uint32(data[4:])
	if !plausibleFatCount(n) {
		return nil, ErrNotMachO
	}

	entry := 20
	if wide {
		entry = 32
	}

	if len(data) < 8+int(n)*entry {
		return nil, fmt.Errorf("%w: truncated universal header", ErrMalformed)
	}

	f := &File{Fat: true}

	for i := range int(n) {
		at := data[8+i*entry:]

		var off, size int64
		if wide {
			off = int64(binary.BigEndian.Uint64(at[8:]))
			size = int64(binary.BigEndian.Uint64(at[16:]))
		} else {
			off = int64(binary.BigEndian.Uint32(at[8:]))
			size = int64(binary.BigEndian.Uint32(at[12:]))
		}

		if off < 0 || size <= 0 || off+size > int64(len(data)) {
			return nil, fmt.Errorf("%w: slice %d out of range", ErrMalformed, i)
		}

		s, err := parseSlice(data, off, size)
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}

		f.Slices = append(f.Slices, s)
	}

	return f, nil
}

func parseSlice(data []byte, off, size int64) (*Slice, error) {
	img := data[off : off+size]
	if len(img) < headerSize32 {
		return nil, ErrNotMachO
	}

	s := &Slice{Offset: off, Size: size}

	le := binary.LittleEndian.Uint32(img)
	be := binary.BigEndian.Uint32(img)

	switch {
	case le == macho.Magic32:
		s.ByteOrder = binary.LittleEndian
	case le == macho.Magic64:
		s.ByteOrder, s.Is64 = binary.LittleEndian, true
	case be == macho.Magic32:
		s.ByteOrder = binary.BigEndian
	case be == macho.Magic64:
		s.ByteOrder, s.Is64 = binary.BigEndian, true
	default:
		return nil, ErrNotMachO
	}

	bo := s.ByteOrder
	s.Cpu = macho.Cpu(bo.Uint32(img[4:]))
	s.SubCpu = bo.Uint32(img[8:])
	s.Type = macho.Type(bo.Uint32(img[12:]))

	if err := s.parseCommands(img); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Slice) headerSize() int {
	if s.Is64 {
		return headerSize64
	}

	return headerSize32
}

func (s *Slice) align() int {
	if s.Is64 {
		return 8
	}

	return 4
}

// parseCommands (re)reads the load commands of the slice image img.
func (s *Slice) parseCommands(img []byte) error {
	bo := s.ByteOrder
	ncmds := int(bo.Uint32(img[16:]))
	s.sizeofcmds = int(bo.Uint32(img[20:]))

	hdr := s.headerSize()
	if hdr+s.sizeofcmds > len(img) {
		return fmt.Errorf("%w: load commands exceed image", ErrMalformed)
	}

	s.Commands = s.Commands[:0]
	s.loadLimit = len(img)

	at := hdr
	end := hdr + s.sizeofcmds

	for i := range ncmds {
		if at+8 > end {
			return fmt.Errorf("%w: load command %d truncated", ErrMalformed, i)
		}

		cmd := macho.LoadCmd(bo.Uint32(img[at:]))
		size := int(bo.Uint32(img[at+4:]))

		if size < 8 || at+size > end {
			return fmt.Errorf("%w: load command %d has bad size %d", ErrMalformed, i, size)
		}

		lc := LoadCommand{Cmd: cmd, Offset: at, Raw: slices.Clone(img[at : at+size])}

		switch {
		case cmd == lcIDDylib || isDylibLoad(cmd):
			lc.Name = s.cstring(lc.Raw, 8)
		case cmd == macho.LoadCmdRpath:
			lc.Name = s.cstring(lc.Raw, 8)
		case cmd == macho.LoadCmdSegment64:
			s.limitSegment64(lc.Raw)
		case cmd == macho.LoadCmdSegment:
			s.limitSegment32(lc.Raw)
		}

		s.Commands = append(s.Commands, lc)
		at += size
	}

	return nil
}

// cstring reads the NUL-terminated string whose offset is stored at field.
func (s *Slice) cstring(raw []byte, field int) string {
	if len(raw) < field+4 {
		return ""
	}

	off := int(s.ByteOrder.Uint32(raw[field:]))
	if off <= 0 || off >= len(raw) {
		return ""
	}

	str := raw[off:]
	if i := bytes.IndexByte(str, 0); i >= 0 {
		str = str[:i]
	}

	return string(str)
}

func (s *Slice) limitSegment64(raw []byte) {
	if len(raw) < 72 {
		return
	}

	bo := s.ByteOrder
	s.lower(int64(bo.Uint64(raw[40:])), int64(bo.Uint64(raw[48:])))

	nsects := int(bo.Uint32(raw[64:]))
	for i := range nsects {
		sec := 72 + i*80
		if sec+80 > len(raw) {
			return
		}

		s.lower(int64(bo.Uint32(raw[sec+48:])), int64(bo.Uint64(raw[sec+40:])))
	}
}

func (s *Slice) limitSegment32(raw []byte) {
	if len(raw) < 56 {
		return
	}

	bo := s.ByteOrder
	s.lower(int64(bo.Uint32(raw[32:])), int64(bo.Uint32(raw[36:])))

	nsects := int(bo.Uint32(raw[48:]))
	for i := range nsects {
		sec := 56 + i*68
		if sec+68 > len(raw) {
			return
		}

		s.lower(int64(bo.Uint32(raw[sec+40:])), int64(bo.Uint32(raw[sec+36:])))
	}
}

// lower narrows the load-command limit to a file range holding data. A
// segment at offset zero contains the header itself and does not count.
func (s *Slice) lower(off, size int64) {
	if off <= 0 || size <= 0 {
		return
	}

	if int(off) < s.loadLimit {
		s.loadLimit = int(off)
	}
}

// ID returns the install name of the slice, or "".
func (s *Slice) ID() string {
	for _, lc := range s.Commands {
		if lc.Cmd == lcIDDylib {
			return lc.Name
		}
	}

	return ""
}

// Dylibs returns the dependency names in load order without duplicates.
func (s *Slice) Dylibs() []string {
	var out []string

	for _, lc := range s.Commands {
		if isDylibLoad(lc.Cmd) && lc.Name != "" && !slices.Contains(out, lc.Name) {
			out = append(out, lc.Name)
		}
	}

	return out
}

// Rpaths returns the LC_RPATH entries in load order without duplicates.
func (s *Slice) Rpaths() []string {
	var out []string

	for _, lc := range s.Commands {
		if lc.Cmd == macho.LoadCmdRpath && lc.Name != "" && !slices.Contains(out, lc.Name) {
			out = append(out, lc.Name)
		}
	}

	return out
}

// codeSignature returns the linkedit range of the embedded signature.
func (s *Slice) codeSignature() (off, size int, ok bool) {
	for _, lc := range s.Commands {
		if lc.Cmd == lcCodeSignature && len(lc.Raw) >= 16 {
			return int(s.ByteOrder.Uint32(lc.Raw[8:])), int(s.ByteOrder.Uint32(lc.Raw[12:])), true
		}
	}

	return 0, 0, false
}

var archNames = map[macho.Cpu]string{
	macho.Cpu386:   "i386",
	macho.CpuAmd64: "x86_64",
	macho.CpuArm:   "arm",
	macho.CpuArm64: "arm64",
	macho.CpuPpc:   "ppc",
	macho.CpuPpc64: "ppc64",
}

// Arch names the CPU of the slice the way lipo does.
func (s *Slice) Arch() string {
	if name, ok := archNames[s.Cpu]; ok {
		return name
	}

	return s.Cpu.String()
}

// ID returns the install name of the first slice carrying one.
func (f *File) ID() string {
	for _, s := range f.Slices {
		if id := s.ID(); id != "" {
			return id
		}
	}

	return ""
}

// Dependencies returns the union of the dependency names of every slice, in
// first-seen order, plus the names missing from at least one slice.
func (f *File) Dependencies() (all, partial []string) {
	return f.union((*Slice).Dylibs)
}

// Rpaths returns the union of the rpaths of every slice.
func (f *File) Rpaths() []string {
	all, _ := f.union((*Slice).Rpaths)

	return all
}

func (f *File) union(list func(*Slice) []string) (all, partial []string) {
	perSlice := make([][]string, 0, len(f.Slices))

	for _, s := range f.Slices {
		names := list(s)
		perSlice = append(perSlice, names)

		for _, n := range names {
			if !slices.Contains(all, n) {
				all = append(all, n)
			}
		}
	}

	for _, n := range all {
		for _, names := range perSlice {
			if !slices.Contains(names, n) {
				partial = append(partial, n)
				break
			}
		}
	}

	return all, partial
}

// Arches lists the CPU names of every slice.
func (f *File) Arches() []string {
	out := make([]string, 0, len(f.Slices))
	for _, s := range f.Slices {
		out = append(out, s.Arch())
	}

	return out
}

// Signed reports whether any slice carries LC_CODE_SIGNATURE.
func (f *File) Signed() bool {
	for _, s := range f.Slices {
		if _, _, ok := s.codeSignature(); ok {
			return true
		}
	}

	return false
}
