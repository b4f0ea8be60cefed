// Package quality inspects downloaded audio with ffprobe and flags
// files whose container claims more resolution than their bitstream
// plausibly carries.
package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

const probeTimeout = 30 * time.Second

// Info describes the audio stream of a downloaded file.
type Info struct {
	Codec         string  `json:"codec"`
	BitrateKbps   int     `json:"bitrateKbps"`
	SampleRate    int     `json:"sampleRate"`
	Channels      int     `json:"channels"`
	DurationSec   float64 `json:"durationSec"`
	BitDepth      int     `json:"bitDepth,omitempty"`
	IsUpscaled    bool    `json:"isUpscaled"`
	UpscaleReason string  `json:"upscaleReason,omitempty"`
}

// Probe analyzes an audio buffer. The overridable runner follows the
// same pattern the providers use for their external tools.
type Probe struct {
	runFfprobe func(ctx context.Context, path string) ([]byte, error)
}

func NewProbe() *Probe {
	return &Probe{runFfprobe: runFfprobe}
}

// Analyze writes the buffer to a temp file and probes it.
func (p *Probe) Analyze(ctx context.Context, audio []byte, ext string) (*Info, error) {
	tmp, err := os.CreateTemp("", "yoink-probe-*."+ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	out, err := p.runFfprobe(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}
	return parseProbe(out)
}

func runFfprobe(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nDetails: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func parseProbe(data []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var audio *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "audio" {
			audio = &probe.Streams[i]
			break
		}
	}
	if audio == nil {
		return nil, fmt.Errorf("no audio stream found")
	}

	info := &Info{
		Codec:      audio.CodecName,
		SampleRate: atoiSafe(audio.SampleRate),
		Channels:   audio.Channels,
	}

	if audio.BitsPerRawSample != "" {
		info.BitDepth = atoiSafe(audio.BitsPerRawSample)
	} else if audio.BitsPerSample > 0 {
		info.BitDepth = audio.BitsPerSample
	}

	bitrate := atoiSafe(audio.BitRate)
	if bitrate == 0 {
		bitrate = atoiSafe(probe.Format.BitRate)
	}
	info.BitrateKbps = bitrate / 1000

	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.DurationSec = d
	}

	info.IsUpscaled, info.UpscaleReason = upscaleCheck(info)
	return info, nil
}

// upscaleCheck flags streams whose resolution claims outrun their
// measured bitrate. Genuine 24-bit lossless rarely encodes below
// ~800 kbps; a hi-res sample rate at MP3-class bitrates is a padded
// transcode, not a studio master.
func upscaleCheck(info *Info) (bool, string) {
	if info.Codec != "flac" && info.Codec != "alac" {
		return false, ""
	}
	if info.BitrateKbps == 0 {
		return false, ""
	}
	if info.BitDepth >= 24 && info.BitrateKbps < 800 {
		return true, fmt.Sprintf("24-bit stream at %d kbps", info.BitrateKbps)
	}
	if info.SampleRate >= 88200 && info.BitrateKbps < 600 {
		return true, fmt.Sprintf("%d Hz stream at %d kbps", info.SampleRate, info.BitrateKbps)
	}
	return false, ""
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

type ffprobeStream struct {
	CodecType        string `json:"codec_type"`
	CodecName        string `json:"codec_name"`
	SampleRate       string `json:"sample_rate"`
	Channels         int    `json:"channels"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	BitsPerSample    int    `json:"bits_per_sample"`
	BitRate          string `json:"bit_rate"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}
