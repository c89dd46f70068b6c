package watermark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// OverlayFilter centers the watermark on every frame at its native size.
const OverlayFilter = "overlay=(W-w)/2:(H-h)/2"

type VideoParams struct {
	InputPath     string
	WatermarkPath string
	OutputPath    string
	FFmpegPath    string // defaults to "ffmpeg" on PATH
}

// ProcessOutcome is the result of one ffmpeg invocation.
type ProcessOutcome struct {
	Success  bool
	ExitCode int
	Stderr   string
}

// Diagnostic returns the captured stderr, or a placeholder when ffmpeg
// failed without writing anything.
func (o ProcessOutcome) Diagnostic() string {
	if o.Stderr == "" && !o.Success {
		return fmt.Sprintf("ffmpeg exited with status %d", o.ExitCode)
	}
	return o.Stderr
}

// VideoArgs builds the ffmpeg argument list for p.
func VideoArgs(p VideoParams) []string {
	return []string{
		"-i", p.InputPath,
		"-i", p.WatermarkPath,
		"-filter_complex", OverlayFilter,
		"-codec:a", "copy",
		"-y",
		p.OutputPath,
	}
}

// VideoWatermark overlays the watermark onto every frame of the input video
// using ffmpeg and reports how the process ended.
//
// A non-zero exit is not an error: it comes back as an outcome with
// Success false and the process stderr. The error return is reserved for a
// missing or undecodable watermark (checked before anything is spawned), an
// ffmpeg binary that cannot be started, and ctx being done. The output file
// is in an undefined state whenever Success is false.
func VideoWatermark(ctx context.Context, p VideoParams) (ProcessOutcome, error) {
	if err := checkImage(p.WatermarkPath); err != nil {
		return ProcessOutcome{}, err
	}

	bin := p.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, VideoArgs(p)...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	outcome := ProcessOutcome{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stderr:   stderr.String(),
	}
	if err == nil {
		outcome.Success = true
		return outcome, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome, fmt.Errorf("ffmpeg watermark: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return outcome, nil
	}
	return outcome, fmt.Errorf("ffmpeg watermark: %w", err)
}
