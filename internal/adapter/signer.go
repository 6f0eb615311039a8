package adapter

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/mouse-blink/libpack/internal/machofile"
	m "github.com/mouse-blink/libpack/internal/model"
)

// Signer re-derives the code signature of a binary after its bytes changed.
type Signer interface {
	// Sign reports whether a signature was (re)written.
	Sign(ctx context.Context, path m.Path) (bool, error)
}

// Signer kinds accepted by NewSigner.
const (
	SignerBuiltin  = "builtin"
	SignerCodesign = "codesign"
	SignerNone     = "none"
)

// NewSigner returns the signer named by kind.
func NewSigner(kind string) (Signer, error) {
	switch kind {
	case "", SignerBuiltin:
		return NewAdhocSigner(), nil
	case SignerCodesign:
		return NewCodesignSigner("codesign"), nil
	case SignerNone:
		return NopSigner{}, nil
	}

	return nil, fmt.Errorf("unknown signer %q", kind)
}

// AdhocSigner re-hashes ad-hoc signatures in process. Unsigned binaries are
// left unsigned.
type AdhocSigner struct{}

// NewAdhocSigner constructs an AdhocSigner.
func NewAdhocSigner() *AdhocSigner {
	return &AdhocSigner{}
}

// Sign recomputes and verifies the code page hashes of path.
func (s *AdhocSigner) Sign(_ context.Context, path m.Path) (bool, error) {
	mf, data, err := machofile.ReadFile(string(path))
	if err != nil {
		return false, err
	}

	if !mf.Signed() {
		return false, nil
	}

	if _, err := mf.Resign(data); err != nil {
		return false, err
	}

	if err := mf.Verify(data); err != nil {
		return false, err
	}

	if err := writeFileAtomic(path, data); err != nil {
		return false, err
	}

	return true, nil
}

// CommandRunner runs an external tool and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CodesignSigner shells out to Apple's codesign to apply an ad-hoc
// signature, replacing any developer signature.
type CodesignSigner struct {
	tool string
	run  CommandRunner
}

// NewCodesignSigner constructs a CodesignSigner invoking tool.
func NewCodesignSigner(tool string) *CodesignSigner {
	return &CodesignSigner{tool: tool, run: runCommand}
}

// WithRunner replaces the command runner.
func (s *CodesignSigner) WithRunner(run CommandRunner) *CodesignSigner {
	s.run = run

	return s
}

// Sign runs `codesign --force --sign - path`.
func (s *CodesignSigner) Sign(ctx context.Context, path m.Path) (bool, error) {
	out, err := s.run(ctx, s.tool, "--force", "--sign", "-", string(path))
	if err != nil {
		return false, fmt.Errorf("%s: %w: %s", s.tool, err, out)
	}

	return true, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 - the tool name comes from configuration
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NopSigner leaves signatures alone.
type NopSigner struct{}

// Sign does nothing.
func (NopSigner) Sign(context.Context, m.Path) (bool, error) {
	return false, nil
}
