package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"yoink/internal/logger"
	"yoink/internal/metadata"
)

func newTestTranscoder() *Transcoder {
	return New(NewLimiter(2), logger.New(false))
}

// writeOutput fakes a successful ffmpeg run by writing data to the
// output path (the last argument of the invocation).
func writeOutput(data []byte) func(ctx context.Context, args []string) error {
	return func(ctx context.Context, args []string) error {
		return os.WriteFile(args[len(args)-1], data, 0o600)
	}
}

func TestConvertSameFormatPassthrough(t *testing.T) {
	tr := newTestTranscoder()
	tr.runFfmpeg = func(ctx context.Context, args []string) error {
		t.Fatal("ffmpeg should not run when formats already match")
		return nil
	}

	audio := []byte("flac bytes")
	out, ext, err := tr.Convert(context.Background(), audio, Options{
		InputExt:     "flac",
		OutputFormat: "flac",
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.Equal(out, audio) {
		t.Error("passthrough should return the source buffer unchanged")
	}
	if ext != "flac" {
		t.Errorf("ext = %q, want flac", ext)
	}
}

func TestConvertWritesOutput(t *testing.T) {
	tr := newTestTranscoder()
	converted := []byte("converted mp3 bytes")
	var gotArgs []string
	tr.runFfmpeg = func(ctx context.Context, args []string) error {
		gotArgs = args
		return os.WriteFile(args[len(args)-1], converted, 0o600)
	}

	out, ext, err := tr.Convert(context.Background(), []byte("webm bytes"), Options{
		InputExt:     "webm",
		OutputFormat: "mp3",
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.Equal(out, converted) {
		t.Error("Convert should return the transcoded bytes")
	}
	if ext != "mp3" {
		t.Errorf("ext = %q, want mp3", ext)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-c:a libmp3lame") || !strings.Contains(joined, "-b:a 320k") {
		t.Errorf("mp3 args missing encoder settings: %v", gotArgs)
	}
}

func TestConvertRetriesThenFallsBack(t *testing.T) {
	tr := newTestTranscoder()
	calls := 0
	tr.runFfmpeg = func(ctx context.Context, args []string) error {
		calls++
		return errors.New("boom")
	}

	audio := []byte("source audio")
	out, ext, err := tr.Convert(context.Background(), audio, Options{
		InputExt:     "webm",
		OutputFormat: "flac",
	})
	if err != nil {
		t.Fatalf("Convert should deliver the source on double failure, got error: %v", err)
	}
	if calls != 2 {
		t.Errorf("ffmpeg ran %d times, want initial attempt plus one retry", calls)
	}
	if !bytes.Equal(out, audio) || ext != "webm" {
		t.Errorf("fallback = (%d bytes, %q), want source buffer with webm ext", len(out), ext)
	}
}

func TestConvertRetrySucceeds(t *testing.T) {
	tr := newTestTranscoder()
	converted := []byte("second try output")
	calls := 0
	tr.runFfmpeg = func(ctx context.Context, args []string) error {
		calls++
		if calls == 1 {
			return errors.New("first attempt fails")
		}
		// The retry drops artwork and metadata arguments.
		for _, a := range args {
			if a == "-metadata" || a == "attached_pic" {
				t.Errorf("retry args should be minimal, got %v", args)
			}
		}
		return os.WriteFile(args[len(args)-1], converted, 0o600)
	}

	out, ext, err := tr.Convert(context.Background(), []byte("in"), Options{
		InputExt:     "flac",
		OutputFormat: "mp3",
		ArtworkJPEG:  []byte("jpeg"),
		Track:        metadata.Track{Name: "Song", Artist: "Artist"},
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.Equal(out, converted) || ext != "mp3" {
		t.Errorf("got (%q, %q), want retry output as mp3", out, ext)
	}
}

func TestConvertOutputSizeCeiling(t *testing.T) {
	tr := newTestTranscoder()
	tr.runFfmpeg = writeOutput(bytes.Repeat([]byte("x"), 100))

	_, _, err := tr.Convert(context.Background(), []byte("in"), Options{
		InputExt:       "flac",
		OutputFormat:   "mp3",
		MaxOutputBytes: 50,
	})
	if err == nil {
		t.Fatal("expected error for oversized output, got nil")
	}
}

func TestConvertAlacUsesM4AExt(t *testing.T) {
	tr := newTestTranscoder()
	tr.runFfmpeg = writeOutput([]byte("alac"))

	_, ext, err := tr.Convert(context.Background(), []byte("in"), Options{
		InputExt:     "flac",
		OutputFormat: "alac",
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if ext != "m4a" {
		t.Errorf("ext = %q, want m4a for alac", ext)
	}
}

func TestBuildArgsWithArtwork(t *testing.T) {
	args := buildArgs("/tmp/in.flac", "/tmp/cover.jpg", "/tmp/out.mp3", Options{
		InputExt:     "flac",
		OutputFormat: "mp3",
		Track: metadata.Track{
			Name:        "Karma Police",
			Artist:      "Radiohead",
			Album:       "OK Computer",
			TrackNumber: 6,
			TotalTracks: 12,
			DiscNumber:  1,
		},
	})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-i /tmp/in.flac",
		"-i /tmp/cover.jpg",
		"-map 0:a -map 1:v",
		"-disposition:v attached_pic",
		"-c:v mjpeg",
		"-metadata title=Karma Police",
		"-metadata track=6/12",
		"-metadata disc=1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if args[len(args)-1] != "/tmp/out.mp3" {
		t.Errorf("output path must be last, got %q", args[len(args)-1])
	}
}

func TestMetadataPairsSkipsEmpty(t *testing.T) {
	pairs := metadataPairs(metadata.Track{Name: "Song", TrackNumber: 3})
	for _, p := range pairs {
		if strings.HasSuffix(p, "=") {
			t.Errorf("empty metadata value emitted: %q", p)
		}
	}
	if len(pairs) != 2 {
		t.Errorf("pairs = %v, want title and track only", pairs)
	}
	if pairs[1] != "track=3" {
		t.Errorf("track = %q, want bare number without total", pairs[1])
	}
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := NewLimiter(1)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("second acquire should block until the slot frees")
	}

	l.Release()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	l.Release()
}

func TestLimiterFloor(t *testing.T) {
	l := NewLimiter(0)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("limiter with zero max should still grant one slot: %v", err)
	}
	l.Release()
}

func TestConvertQueueCancellation(t *testing.T) {
	l := NewLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release()

	tr := New(l, logger.New(false))
	tr.runFfmpeg = writeOutput([]byte("never reached"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := tr.Convert(ctx, []byte("in"), Options{InputExt: "flac", OutputFormat: "mp3"})
	if err == nil {
		t.Fatal("expected queue cancellation error, got nil")
	}
}
