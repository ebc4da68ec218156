package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// LocalSynthesizer shells out to an espeak-compatible binary that writes WAV
// audio to stdout. It serves as the on-device fallback when the network
// synthesis service is unreachable.
type LocalSynthesizer struct {
	binPath string
}

// NewLocalSynthesizer resolves the binary on PATH. A missing binary means
// the capability is absent and no fallback should be wired.
func NewLocalSynthesizer(bin string) (*LocalSynthesizer, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		bin = "espeak-ng"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("local synthesizer unavailable: %w", err)
	}
	return &LocalSynthesizer{binPath: path}, nil
}

func (s *LocalSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}

	var out, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binPath, "--stdout", text)
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(errBuf.String())
		if detail != "" {
			return nil, fmt.Errorf("local synthesis failed: %v: %s", err, detail)
		}
		return nil, fmt.Errorf("local synthesis failed: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("local synthesis produced no audio")
	}
	return out.Bytes(), nil
}
