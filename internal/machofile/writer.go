package machofile

import (
	"debug/macho"
	"fmt"
	"slices"
)

// Edit describes load-command changes applied to every slice of a file.
type Edit struct {
	// ID replaces the install name when non-empty. Slices without an
	// LC_ID_DYLIB are left without one.
	ID string
	// Changes maps old dependency names to new ones.
	Changes map[string]string
	// DeleteRpaths lists LC_RPATH entries to remove.
	DeleteRpaths []string
}

// Empty reports whether the edit changes nothing.
func (e Edit) Empty() bool {
	return e.ID == "" && len(e.Changes) == 0 && len(e.DeleteRpaths) == 0
}

// Apply rewrites the load commands of every slice in data, which must be the
// bytes f was parsed from. The length of data never changes. It reports
// whether any byte was modified. On error data may be partially modified.
func (f *File) Apply(data []byte, e Edit) (bool, error) {
	if e.Empty() {
		return false, nil
	}

	changed := false

	for _, s := range f.Slices {
		ok, err := s.apply(data[s.Offset:s.Offset+s.Size], e)
		if err != nil {
			return changed, fmt.Errorf("%s slice: %w", s.Arch(), err)
		}

		changed = changed || ok
	}

	return changed, nil
}

func (s *Slice) apply(img []byte, e Edit) (bool, error) {
	var (
		cmds    [][]byte
		changed bool
	)

	for _, lc := range s.Commands {
		switch {
		case lc.Cmd == lcIDDylib && e.ID != "" && e.ID != lc.Name:
			cmds = append(cmds, s.dylibCommand(lc.Raw, e.ID))
			changed = true

			continue
		case isDylibLoad(lc.Cmd):
			if to, ok := e.Changes[lc.Name]; ok && to != lc.Name {
				cmds = append(cmds, s.dylibCommand(lc.Raw, to))
				changed = true

				continue
			}
		case lc.Cmd == macho.LoadCmdRpath && slices.Contains(e.DeleteRpaths, lc.Name):
			changed = true

			continue
		}

		cmds = append(cmds, lc.Raw)
	}

	if !changed {
		return false, nil
	}

	total := 0
	for _, c := range cmds {
		total += len(c)
	}

	hdr := s.headerSize()
	if hdr+total > s.loadLimit {
		return false, fmt.Errorf("%w: need %d bytes, have %d", ErrNoSpace, total, s.loadLimit-hdr)
	}

	region := img[hdr : hdr+max(total, s.sizeofcmds)]
	clear(region)

	at := 0
	for _, c := range cmds {
		at += copy(region[at:], c)
	}

	s.ByteOrder.PutUint32(img[16:], uint32(len(cmds)))
	s.ByteOrder.PutUint32(img[20:], uint32(total))

	if err := s.parseCommands(img); err != nil {
		return true, err
	}

	return true, nil
}

// dylibCommand rebuilds a dylib_command with a new name, keeping the
// timestamp and version fields of raw.
func (s *Slice) dylibCommand(raw []byte, name string) []byte {
	bo := s.ByteOrder

	nameOff := int(bo.Uint32(raw[8:]))
	if nameOff < 24 || nameOff > len(raw) {
		nameOff = 24
	}

	size := s.padded(nameOff + len(name) + 1)
	out := make([]byte, size)
	copy(out, raw[:min(nameOff, len(raw))])
	bo.PutUint32(out[4:], uint32(size))
	bo.PutUint32(out[8:], uint32(nameOff))
	copy(out[nameOff:], name)

	return out
}

func (s *Slice) padded(n int) int {
	a := s.align()

	return (n + a - 1) / a * a
}
