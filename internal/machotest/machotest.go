// Package machotest builds small synthetic Mach-O images for tests: a
// __TEXT segment with one section placed at TextOffset, the requested
// dylib/rpath load commands and, optionally, an ad-hoc code signature.
package machotest

import (
	"bytes"
	"crypto/sha256"
	"debug/macho"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	defaultTextOffset = 0x1000
	pageSize          = 0x1000
	fatAlignShift     = 14

	lcIDDylib       = 0xd
	lcCodeSignature = 0x1d

	cdHeaderSize = 88
)

// Spec describes one image.
type Spec struct {
	Type   macho.Type
	Cpu    macho.Cpu
	ID     string
	Dylibs []string
	Rpaths []string
	// Code fills the __text section. A fixed pattern is used when empty.
	Code []byte
	// TextOffset is the file offset of __text and bounds the header padding.
	TextOffset int
	// Sign appends an ad-hoc code signature.
	Sign bool
	// CMS turns the signature into a developer signature with a CMS blob.
	CMS bool
}

// Build returns the bytes of a thin little-endian 64-bit image.
func Build(s Spec) []byte {
	if s.Type == 0 {
		s.Type = macho.TypeDylib
	}

	if s.Cpu == 0 {
		s.Cpu = macho.CpuArm64
	}

	if s.TextOffset == 0 {
		s.TextOffset = defaultTextOffset
	}

	if len(s.Code) == 0 {
		s.Code = bytes.Repeat([]byte{0x1f, 0x20, 0x03, 0xd5}, 64)
	}

	codeEnd := s.TextOffset + len(s.Code)
	sigOff := align(codeEnd, 16)
	sigSize := 0

	if s.Sign {
		sigSize = align(signatureSize(sigOff, s.CMS), 16)
	}

	cmds := [][]byte{
		segment64("__TEXT", 0, uint64(align(codeEnd, pageSize)), 0, uint64(codeEnd), 5,
			section64("__text", "__TEXT", uint64(s.TextOffset), uint64(len(s.Code)), uint32(s.TextOffset))),
	}

	if s.Sign {
		cmds = append(cmds, segment64("__LINKEDIT", uint64(align(codeEnd, pageSize)), uint64(align(sigSize, pageSize)),
			uint64(sigOff), uint64(sigSize), 1))
	}

	if s.ID != "" {
		cmds = append(cmds, dylibCommand(lcIDDylib, s.ID))
	}

	for _, d := range s.Dylibs {
		cmds = append(cmds, dylibCommand(uint32(macho.LoadCmdDylib), d))
	}

	for _, r := range s.Rpaths {
		cmds = append(cmds, rpathCommand(r))
	}

	if s.Sign {
		cmds = append(cmds, linkeditData(lcCodeSignature, uint32(sigOff), uint32(sigSize)))
	}

	sizeofcmds := 0
	for _, c := range cmds {
		sizeofcmds += len(c)
	}

	if 32+sizeofcmds > s.TextOffset {
		panic("machotest: load commands overflow header padding")
	}

	total := codeEnd
	if s.Sign {
		total = sigOff + sigSize
	}

	data := make([]byte, total)
	le := binary.LittleEndian
	le.PutUint32(data[0:], macho.Magic64)
	le.PutUint32(data[4:], uint32(s.Cpu))
	le.PutUint32(data[8:], 0)
	le.PutUint32(data[12:], uint32(s.Type))
	le.PutUint32(data[16:], uint32(len(cmds)))
	le.PutUint32(data[20:], uint32(sizeofcmds))
	le.PutUint32(data[24:], 0x85)

	at := 32
	for _, c := range cmds {
		at += copy(data[at:], c)
	}

	copy(data[s.TextOffset:], s.Code)

	if s.Sign {
		copy(data[sigOff:], signature(data[:sigOff], s.CMS, uint64(codeEnd), s.Type == macho.TypeExec))
	}

	return data
}

// BuildFat wraps one image per spec into a universal file.
func BuildFat(specs ...Spec) []byte {
	images := make([][]byte, len(specs))
	for i, s := range specs {
		images[i] = Build(s)
	}

	slot := 1 << fatAlignShift
	off := align(8+20*len(specs), slot)

	header := make([]byte, off)
	be := binary.BigEndian
	be.PutUint32(header[0:], macho.MagicFat)
	be.PutUint32(header[4:], uint32(len(specs)))

	out := header

	for i, img := range images {
		cpu := specs[i].Cpu
		if cpu == 0 {
			cpu = macho.CpuArm64
		}

		entry := out[8+20*i:]
		be.PutUint32(entry[0:], uint32(cpu))
		be.PutUint32(entry[4:], 0)
		be.PutUint32(entry[8:], uint32(len(out)))
		be.PutUint32(entry[12:], uint32(len(img)))
		be.PutUint32(entry[16:], fatAlignShift)

		out = append(out, img...)
		if pad := align(len(out), slot) - len(out); pad > 0 && i < len(images)-1 {
			out = append(out, make([]byte, pad)...)
		}
	}

	return out
}

// Write builds s and writes it to path with executable permissions.
func Write(t testing.TB, path string, s Spec) string {
	t.Helper()

	writeBytes(t, path, Build(s))

	return path
}

// WriteFat builds a universal file from specs and writes it to path.
func WriteFat(t testing.TB, path string, specs ...Spec) string {
	t.Helper()

	writeBytes(t, path, BuildFat(specs...))

	return path
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, data, 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func align(n, a int) int {
	return (n + a - 1) / a * a
}

func segment64(name string, vmaddr, vmsize, fileoff, filesize uint64, prot uint32, sections ...[]byte) []byte {
	le := binary.LittleEndian
	size := 72 + 80*len(sections)
	b := make([]byte, size)
	le.PutUint32(b[0:], uint32(macho.LoadCmdSegment64))
	le.PutUint32(b[4:], uint32(size))
	copy(b[8:24], name)
	le.PutUint64(b[24:], vmaddr)
	le.PutUint64(b[32:], vmsize)
	le.PutUint64(b[40:], fileoff)
	le.PutUint64(b[48:], filesize)
	le.PutUint32(b[56:], prot)
	le.PutUint32(b[60:], prot)
	le.PutUint32(b[64:], uint32(len(sections)))

	for i, sec := range sections {
		copy(b[72+80*i:], sec)
	}

	return b
}

func section64(name, seg string, addr, size uint64, offset uint32) []byte {
	le := binary.LittleEndian
	b := make([]byte, 80)
	copy(b[0:16], name)
	copy(b[16:32], seg)
	le.PutUint64(b[32:], addr)
	le.PutUint64(b[40:], size)
	le.PutUint32(b[48:], offset)
	le.PutUint32(b[52:], 2)
	le.PutUint32(b[64:], 0x80000400)

	return b
}

func dylibCommand(cmd uint32, name string) []byte {
	le := binary.LittleEndian
	size := align(24+len(name)+1, 8)
	b := make([]byte, size)
	le.PutUint32(b[0:], cmd)
	le.PutUint32(b[4:], uint32(size))
	le.PutUint32(b[8:], 24)
	le.PutUint32(b[12:], 2)
	le.PutUint32(b[16:], 0x10000)
	le.PutUint32(b[20:], 0x10000)
	copy(b[24:], name)

	return b
}

func rpathCommand(path string) []byte {
	le := binary.LittleEndian
	size := align(12+len(path)+1, 8)
	b := make([]byte, size)
	le.PutUint32(b[0:], uint32(macho.LoadCmdRpath))
	le.PutUint32(b[4:], uint32(size))
	le.PutUint32(b[8:], 12)
	copy(b[12:], path)

	return b
}

func linkeditData(cmd, off, size uint32) []byte {
	le := binary.LittleEndian
	b := make([]byte, 16)
	le.PutUint32(b[0:], cmd)
	le.PutUint32(b[4:], 16)
	le.PutUint32(b[8:], off)
	le.PutUint32(b[12:], size)

	return b
}

const (
	identifier = "machotest"
	cmsPayload = 16
)

func pages(limit int) int {
	return (limit + pageSize - 1) / pageSize
}

func signatureSize(codeLimit int, cms bool) int {
	size := 12 + 8 + cdHeaderSize + len(identifier) + 1 + pages(codeLimit)*sha256.Size
	if cms {
		size += 8 + 8 + cmsPayload
	}

	return size
}

// signature lays out a SuperBlob holding one SHA-256 CodeDirectory over
// code, plus a CMS wrapper when cms is set.
func signature(code []byte, cms bool, execLimit uint64, exec bool) []byte {
	be := binary.BigEndian
	nPages := pages(len(code))
	identLen := len(identifier) + 1
	cdLen := cdHeaderSize + identLen + nPages*sha256.Size

	count := 1
	if cms {
		count = 2
	}

	indexEnd := 12 + 8*count
	total := indexEnd + cdLen
	if cms {
		total += 8 + cmsPayload
	}

	b := make([]byte, total)
	be.PutUint32(b[0:], 0xfade0cc0)
	be.PutUint32(b[4:], uint32(total))
	be.PutUint32(b[8:], uint32(count))
	be.PutUint32(b[12:], 0)
	be.PutUint32(b[16:], uint32(indexEnd))

	if cms {
		be.PutUint32(b[20:], 0x10000)
		be.PutUint32(b[24:], uint32(indexEnd+cdLen))
	}

	flags := uint32(0x2)
	if cms {
		flags = 0
	}

	execFlags := uint64(0)
	if exec {
		execFlags = 1
	}

	cd := b[indexEnd:]
	be.PutUint32(cd[0:], 0xfade0c02)
	be.PutUint32(cd[4:], uint32(cdLen))
	be.PutUint32(cd[8:], 0x20400)
	be.PutUint32(cd[12:], flags)
	be.PutUint32(cd[16:], uint32(cdHeaderSize+identLen))
	be.PutUint32(cd[20:], cdHeaderSize)
	be.PutUint32(cd[24:], 0)
	be.PutUint32(cd[28:], uint32(nPages))
	be.PutUint32(cd[32:], uint32(len(code)))
	cd[36] = sha256.Size
	cd[37] = 2
	cd[39] = 12
	be.PutUint64(cd[64:], 0)
	be.PutUint64(cd[72:], execLimit)
	be.PutUint64(cd[80:], execFlags)
	copy(cd[cdHeaderSize:], identifier)

	hashes := cd[cdHeaderSize+identLen:]
	for i := range nPages {
		end := min((i+1)*pageSize, len(code))
		sum := sha256.Sum256(code[i*pageSize : end])
		copy(hashes[i*sha256.Size:], sum[:])
	}

	if cms {
		w := b[indexEnd+cdLen:]
		be.PutUint32(w[0:], 0xfade0b01)
		be.PutUint32(w[4:], uint32(8+cmsPayload))
		copy(w[8:], bytes.Repeat([]byte{0x30}, cmsPayload))
	}

	return b
}
