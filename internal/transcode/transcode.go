// Package transcode converts downloaded audio into the delivery format
// with ffmpeg, under a concurrency limiter and a hard output-size
// ceiling.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"yoink/internal/logger"
	"yoink/internal/metadata"
)

// Options configure a single conversion.
type Options struct {
	// InputExt is the extension of the source buffer (flac, mp3, webm).
	InputExt string
	// OutputFormat is the delivery format (mp3, flac, alac).
	OutputFormat string
	// ArtworkJPEG, when non-nil, is embedded as cover art.
	ArtworkJPEG []byte
	// Track supplies the metadata written into the container.
	Track metadata.Track
	// Timeout bounds one ffmpeg run. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxOutputBytes rejects oversized results. Zero disables the check.
	MaxOutputBytes int64
}

const DefaultTimeout = 5 * time.Minute

// Transcoder runs ffmpeg conversions.
type Transcoder struct {
	limiter *Limiter
	log     *logger.Logger

	// Overridable for testing
	runFfmpeg func(ctx context.Context, args []string) error
}

func New(limiter *Limiter, log *logger.Logger) *Transcoder {
	return &Transcoder{
		limiter:   limiter,
		log:       log,
		runFfmpeg: runFfmpeg,
	}
}

// Convert transcodes the buffer and returns the result bytes together
// with the final extension. When the source already carries the target
// codec the buffer is returned unchanged. A failed conversion is
// retried once with a minimal argument set; if that also fails, the
// original buffer comes back so the caller still has playable audio.
func (t *Transcoder) Convert(ctx context.Context, audio []byte, opts Options) ([]byte, string, error) {
	if opts.InputExt == opts.OutputFormat {
		return audio, opts.InputExt, nil
	}

	if err := t.limiter.Acquire(ctx); err != nil {
		return nil, "", fmt.Errorf("transcode queue: %w", err)
	}
	defer t.limiter.Release()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	dir, err := os.MkdirTemp("", "yoink-transcode-")
	if err != nil {
		return nil, "", err
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input."+opts.InputExt)
	if err := os.WriteFile(inputPath, audio, 0o600); err != nil {
		return nil, "", err
	}

	var artPath string
	if len(opts.ArtworkJPEG) > 0 {
		artPath = filepath.Join(dir, "cover.jpg")
		if err := os.WriteFile(artPath, opts.ArtworkJPEG, 0o600); err != nil {
			t.log.Warn("Failed to stage cover art: %v", err)
			artPath = ""
		}
	}

	outExt := outputExt(opts.OutputFormat)
	outputPath := filepath.Join(dir, "output."+outExt)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildArgs(inputPath, artPath, outputPath, opts)
	if err := t.runFfmpeg(runCtx, args); err != nil {
		t.log.Warn("Transcode failed, retrying with minimal arguments: %v", err)
		os.Remove(outputPath)
		minimal := buildArgs(inputPath, "", outputPath, Options{
			InputExt:     opts.InputExt,
			OutputFormat: opts.OutputFormat,
		})
		if retryErr := t.runFfmpeg(runCtx, minimal); retryErr != nil {
			t.log.Warn("Transcode retry failed, delivering source format: %v", retryErr)
			return audio, opts.InputExt, nil
		}
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return audio, opts.InputExt, nil
	}
	if len(out) == 0 {
		return audio, opts.InputExt, nil
	}
	if opts.MaxOutputBytes > 0 && int64(len(out)) > opts.MaxOutputBytes {
		return nil, "", fmt.Errorf("transcoded output is %d bytes, limit %d", len(out), opts.MaxOutputBytes)
	}
	return out, outExt, nil
}

// buildArgs assembles the ffmpeg invocation. With an artwork path the
// cover is mapped as an attached picture alongside the audio stream.
func buildArgs(inputPath, artPath, outputPath string, opts Options) []string {
	args := []string{"-y", "-i", inputPath}
	if artPath != "" {
		args = append(args, "-i", artPath,
			"-map", "0:a", "-map", "1:v",
			"-disposition:v", "attached_pic",
		)
	}

	switch opts.OutputFormat {
	case "mp3":
		args = append(args, "-c:a", "libmp3lame", "-b:a", "320k", "-id3v2_version", "3")
	case "flac":
		args = append(args, "-c:a", "flac")
	case "alac":
		args = append(args, "-c:a", "alac")
	default:
		args = append(args, "-c:a", "copy")
	}
	if artPath != "" {
		args = append(args, "-c:v", "mjpeg")
	}

	for _, kv := range metadataPairs(opts.Track) {
		args = append(args, "-metadata", kv)
	}

	return append(args, outputPath)
}

func metadataPairs(t metadata.Track) []string {
	var pairs []string
	add := func(key, value string) {
		if value != "" {
			pairs = append(pairs, key+"="+value)
		}
	}
	add("title", t.Name)
	add("artist", t.Artist)
	add("album", t.Album)
	add("album_artist", t.AlbumArtist)
	add("date", t.ReleaseDate)
	if t.TrackNumber > 0 {
		if t.TotalTracks > 0 {
			add("track", fmt.Sprintf("%d/%d", t.TrackNumber, t.TotalTracks))
		} else {
			add("track", fmt.Sprintf("%d", t.TrackNumber))
		}
	}
	if t.DiscNumber > 0 {
		add("disc", fmt.Sprintf("%d", t.DiscNumber))
	}
	return pairs
}

func outputExt(format string) string {
	if format == "alac" {
		return "m4a"
	}
	return format
}

func runFfmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nDetails: %s", err, stderr.String())
	}
	return nil
}
