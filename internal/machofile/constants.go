// Package machofile reads and edits the load commands of Mach-O binaries,
// both thin and universal, and keeps their ad-hoc code signatures valid.
//
// The package never changes anything outside the load-command region and
// the code-directory hash slots, so section contents and linkedit data stay
// byte-identical across an edit.
package machofile

import (
	"debug/macho"
	"errors"
)

var (
	// ErrNotMachO is returned for data that does not start with a Mach-O or
	// universal header.
	ErrNotMachO = errors.New("not a Mach-O file")
	// ErrMalformed is returned when header fields point outside the file.
	ErrMalformed = errors.New("malformed Mach-O file")
	// ErrNoSpace is returned when rewritten load commands do not fit in the
	// padding between the header and the first section.
	ErrNoSpace = errors.New("not enough header padding for load commands")
	// ErrNotAdhoc is returned when a signature carries a CMS blob or a
	// non-ad-hoc code directory that cannot be re-derived in-process.
	ErrNotAdhoc = errors.New("code signature is not ad-hoc")
	// ErrSignatureMismatch is returned by Verify when a page hash is stale.
	ErrSignatureMismatch = errors.New("code signature does not match contents")
)

const (
	magicFat64 uint32 = 0xcafebabf

	// Java class files share the universal magic; real universal binaries
	// never carry this many slices.
	maxFatArches = 30

	headerSize32 = 28
	headerSize64 = 32
)

// Load commands not named by debug/macho.
const (
	lcReqDyld                        = 0x80000000
	lcIDDylib         macho.LoadCmd = 0xd
	lcLoadWeakDylib   macho.LoadCmd = 0x18 | lcReqDyld
	lcReexportDylib   macho.LoadCmd = 0x1f | lcReqDyld
	lcLazyLoadDylib   macho.LoadCmd = 0x20
	lcLoadUpwardDylib macho.LoadCmd = 0x23 | lcReqDyld
	lcCodeSignature   macho.LoadCmd = 0x1d
)

// Code signing blob layout.
const (
	csMagicEmbeddedSignature = 0xfade0cc0
	csMagicCodeDirectory     = 0xfade0c02
	csMagicBlobWrapper       = 0xfade0b01

	csSlotSignature = 0x10000
	csAdhoc         = 0x2

	csHashSHA1            = 1
	csHashSHA256          = 2
	csHashSHA256Truncated = 3
	csHashSHA384          = 4

	csVersionCodeLimit64 = 0x20300
)

func isDylibLoad(cmd macho.LoadCmd) bool {
	switch cmd {
	case macho.LoadCmdDylib, lcLoadWeakDylib, lcReexportDylib, lcLazyLoadDylib, lcLoadUpwardDylib:
		return true
	}

	return false
}
