// Command markbot watermarks a single photo or video from the command line,
// using the same defaults and .env file as the server. With -hash-token it
// prints the bcrypt hash an operator puts in ACCESS_TOKEN_HASH.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/YannKr/markbot/internal/auth"
	"github.com/YannKr/markbot/internal/config"
	"github.com/YannKr/markbot/internal/watermark"
)

func main() {
	cfg := config.Load()

	in := flag.String("in", "", "input photo or video")
	out := flag.String("out", "", "output path")
	wm := flag.String("watermark", cfg.WatermarkPath, "watermark image")
	video := flag.Bool("video", false, "treat the input as a video even if the extension is unknown")
	ffmpeg := flag.String("ffmpeg", cfg.FFmpegPath, "ffmpeg binary")
	hash := flag.Bool("hash-token", false, "read an access token from stdin and print its ACCESS_TOKEN_HASH")
	flag.Parse()

	slog.SetDefault(cfg.Logger())

	if *hash {
		h, err := hashToken(os.Stdin)
		if err != nil {
			slog.Error("hash token", "error", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind, ok := watermark.DetectKind(*in, "")
	if *video {
		kind, ok = watermark.KindVideo, true
	}
	if !ok {
		slog.Error("cannot tell whether input is a photo or a video", "path", *in)
		os.Exit(2)
	}

	if kind == watermark.KindImage {
		err := watermark.ImageWatermark(ctx, watermark.ImageParams{
			InputPath:     *in,
			WatermarkPath: *wm,
			OutputPath:    *out,
		})
		if err != nil {
			slog.Error("watermark photo", "error", err)
			os.Exit(1)
		}
		slog.Info("photo written", "path", *out)
		return
	}

	outcome, err := watermark.VideoWatermark(ctx, watermark.VideoParams{
		InputPath:     *in,
		WatermarkPath: *wm,
		OutputPath:    *out,
		FFmpegPath:    *ffmpeg,
	})
	if err != nil {
		slog.Error("watermark video", "error", err)
		os.Exit(1)
	}
	if !outcome.Success {
		fmt.Fprint(os.Stderr, outcome.Stderr)
		slog.Error("ffmpeg failed", "exit_code", outcome.ExitCode)
		os.Exit(1)
	}
	slog.Info("video written", "path", *out)
}

// hashToken bcrypt-hashes the first line of r.
func hashToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errors.New("empty token")
	}
	return auth.HashPassword(token)
}
