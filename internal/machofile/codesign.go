package machofile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // SHA-1 code directories still exist in the wild
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
)

// codeDirectory locates the hash slots of one CodeDirectory blob.
type codeDirectory struct {
	offset     int // relative to the slice
	flags      uint32
	hashOffset int
	nCodeSlots int
	codeLimit  int
	hashSize   int
	hashType   uint8
	pageShift  uint8
}

type signature struct {
	dirs   []codeDirectory
	hasCMS bool
}

// signature parses the SuperBlob of the slice. Code signature blobs are
// always big-endian regardless of the slice byte order.
func (s *Slice) signature(img []byte) (*signature, error) {
	off, size, ok := s.codeSignature()
	if !ok {
		return nil, nil
	}

	if off <= 0 || size < 12 || off+size > len(img) {
		return nil, fmt.Errorf("%w: code signature out of range", ErrMalformed)
	}

	blob := img[off : off+size]
	if binary.BigEndian.Uint32(blob) != csMagicEmbeddedSignature {
		return nil, fmt.Errorf("%w: bad signature magic", ErrMalformed)
	}

	count := int(binary.BigEndian.Uint32(blob[8:]))
	if 12+count*8 > len(blob) {
		return nil, fmt.Errorf("%w: signature index truncated", ErrMalformed)
	}

	sig := &signature{}

	for i := range count {
		slot := binary.BigEndian.Uint32(blob[12+i*8:])
		at := int(binary.BigEndian.Uint32(blob[16+i*8:]))

		if at+8 > len(blob) {
			return nil, fmt.Errorf("%w: signature blob %d out of range", ErrMalformed, i)
		}

		magic := binary.BigEndian.Uint32(blob[at:])
		length := int(binary.BigEndian.Uint32(blob[at+4:]))

		switch {
		case magic == csMagicCodeDirectory:
			cd, err := parseCodeDirectory(blob[at:], off+at)
			if err != nil {
				return nil, err
			}

			sig.dirs = append(sig.dirs, cd)
		case slot == csSlotSignature && magic == csMagicBlobWrapper && length > 8:
			sig.hasCMS = true
		}
	}

	return sig, nil
}

// maxPageShift bounds the code page size to 2 GiB.
const maxPageShift = 31

func parseCodeDirectory(b []byte, offset int) (codeDirectory, error) {
	if len(b) < 44 {
		return codeDirectory{}, fmt.Errorf("%w: code directory truncated", ErrMalformed)
	}

	be := binary.BigEndian
	cd := codeDirectory{
		offset:     offset,
		flags:      be.Uint32(b[12:]),
		hashOffset: int(be.Uint32(b[16:])),
		nCodeSlots: int(be.Uint32(b[28:])),
		codeLimit:  int(be.Uint32(b[32:])),
		hashSize:   int(b[36]),
		hashType:   b[37],
		pageShift:  b[39],
	}

	if version := be.Uint32(b[8:]); version >= csVersionCodeLimit64 && len(b) >= 64 {
		if limit64 := be.Uint64(b[56:]); limit64 != 0 {
			cd.codeLimit = int(limit64)
		}
	}

	if cd.pageShift > maxPageShift {
		return codeDirectory{}, fmt.Errorf("%w: page shift %d", ErrMalformed, cd.pageShift)
	}

	if cd.hashOffset+cd.nCodeSlots*cd.hashSize > len(b) {
		return codeDirectory{}, fmt.Errorf("%w: code hashes out of range", ErrMalformed)
	}

	h := newHash(cd.hashType)
	if h == nil {
		return codeDirectory{}, fmt.Errorf("%w: unsupported hash type %d", ErrMalformed, cd.hashType)
	}

	if cd.hashSize == 0 || cd.hashSize > h.Size() {
		return codeDirectory{}, fmt.Errorf("%w: bad hash size %d", ErrMalformed, cd.hashSize)
	}

	return cd, nil
}

func newHash(t uint8) hash.Hash {
	switch t {
	case csHashSHA1:
		return sha1.New() //nolint:gosec // format-mandated
	case csHashSHA256, csHashSHA256Truncated:
		return sha256.New()
	case csHashSHA384:
		return sha512.New384()
	}

	return nil
}

// pageHash returns the hash of code page i, truncated to the slot size.
func (cd codeDirectory) pageHash(img []byte, i int) []byte {
	start, end := 0, cd.codeLimit
	if cd.pageShift != 0 {
		start = i << cd.pageShift
		end = min(start+1<<cd.pageShift, cd.codeLimit)
	}

	start = min(start, end)

	h := newHash(cd.hashType)
	h.Write(img[start:end])

	return h.Sum(nil)[:cd.hashSize]
}

func (cd codeDirectory) slot(img []byte, i int) []byte {
	at := cd.offset + cd.hashOffset + i*cd.hashSize

	return img[at : at+cd.hashSize]
}

func (cd codeDirectory) check(img []byte) error {
	if cd.codeLimit > len(img) {
		return fmt.Errorf("%w: code limit beyond image", ErrMalformed)
	}

	return nil
}

// Resign recomputes the code page hashes of every ad-hoc code directory in
// data. Files without a signature are left alone and report false.
func (f *File) Resign(data []byte) (bool, error) {
	signed := false

	for _, s := range f.Slices {
		img := data[s.Offset : s.Offset+s.Size]

		sig, err := s.signature(img)
		if err != nil {
			return signed, fmt.Errorf("%s slice: %w", s.Arch(), err)
		}

		if sig == nil {
			continue
		}

		if sig.hasCMS {
			return signed, fmt.Errorf("%s slice: %w: CMS signature present", s.Arch(), ErrNotAdhoc)
		}

		for _, cd := range sig.dirs {
			if cd.flags&csAdhoc == 0 {
				return signed, fmt.Errorf("%s slice: %w: flags %#x", s.Arch(), ErrNotAdhoc, cd.flags)
			}

			if err := cd.check(img); err != nil {
				return signed, err
			}

			for i := range cd.nCodeSlots {
				copy(cd.slot(img, i), cd.pageHash(img, i))
			}
		}

		signed = true
	}

	return signed, nil
}

// Verify checks every code page hash of every code directory in data.
func (f *File) Verify(data []byte) error {
	for _, s := range f.Slices {
		img := data[s.Offset : s.Offset+s.Size]

		sig, err := s.signature(img)
		if err != nil {
			return fmt.Errorf("%s slice: %w", s.Arch(), err)
		}

		if sig == nil {
			continue
		}

		for _, cd := range sig.dirs {
			if err := cd.check(img); err != nil {
				return err
			}

			for i := range cd.nCodeSlots {
				if !bytes.Equal(cd.slot(img, i), cd.pageHash(img, i)) {
					return fmt.Errorf("%s slice: %w: page %d", s.Arch(), ErrSignatureMismatch, i)
				}
			}
		}
	}

	return nil
}
