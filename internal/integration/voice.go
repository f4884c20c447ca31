package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrVoiceUnsupported is returned when no speech-to-text command is configured.
	ErrVoiceUnsupported = errors.New("voice input is not supported: set voice.command in .todoconfig")
	// ErrNoSpeech is returned when the recognizer produced an empty transcript.
	ErrNoSpeech = errors.New("no speech recognized")
)

// VoiceCapture records one utterance and returns its transcript.
type VoiceCapture interface {
	Capture(ctx context.Context) (string, error)
}

// VoiceConfig names the external speech-to-text command. The command must
// print a single transcript to stdout and exit.
type VoiceConfig struct {
	Command string
	Args    []string
}

const waitDelay = 2 * time.Second

type commandVoiceCapture struct {
	cfg VoiceConfig
	// lookPath is injected for testability.
	lookPath func(string) (string, error)
}

// NewVoiceCapture creates a VoiceCapture backed by an external command.
func NewVoiceCapture(cfg VoiceConfig) VoiceCapture {
	return &commandVoiceCapture{cfg: cfg, lookPath: exec.LookPath}
}

// Capture runs the configured command once. The transcript is the command's
// trimmed stdout; interim output is not streamed.
func (v *commandVoiceCapture) Capture(ctx context.Context) (string, error) {
	if strings.TrimSpace(v.cfg.Command) == "" {
		return "", ErrVoiceUnsupported
	}
	path, err := v.lookPath(v.cfg.Command)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVoiceUnsupported, err)
	}

	cmd := exec.CommandContext(ctx, path, v.cfg.Args...)
	cmd.Env = os.Environ()
	// Recognizers may leave children holding stdout after cancellation.
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("capturing voice: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderrBuf.String())
		if exitErr, ok := err.(*exec.ExitError); ok && msg != "" {
			return "", fmt.Errorf("capturing voice: %s exited %d: %s", v.cfg.Command, exitErr.ExitCode(), msg)
		}
		return "", fmt.Errorf("capturing voice: running %s: %w", v.cfg.Command, err)
	}

	transcript := strings.Join(strings.Fields(stdoutBuf.String()), " ")
	if transcript == "" {
		return "", ErrNoSpeech
	}
	return transcript, nil
}
