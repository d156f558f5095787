package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"reelsmith/internal/services"
	"reelsmith/internal/toolchain"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	PixFmt     string `json:"pix_fmt"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Prober runs ffprobe through the media toolchain.
type Prober struct {
	locate  func() (string, error)
	exec    toolchain.Executor
	timeout time.Duration
}

// NewProber builds a prober. locate resolves the ffprobe binary, normally
// Toolchain.LocateProbe.
func NewProber(locate func() (string, error), exec toolchain.Executor, timeout time.Duration) *Prober {
	if exec == nil {
		exec = toolchain.CommandExecutor{}
	}
	return &Prober{locate: locate, exec: exec, timeout: timeout}
}

// Inspect executes ffprobe against path and decodes the JSON response. A
// non-zero exit or unparseable output is a decode error.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrMissingInput, "", "ffprobe", "empty path", nil)
	}
	binary, err := p.locate()
	if err != nil {
		return Result{}, err
	}

	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
	output, err := toolchain.RunWithTimeout(ctx, p.exec, p.timeout, binary, args)
	if err != nil {
		if errors.Is(err, services.ErrTimeout) || errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, services.Wrap(services.ErrDecode, "", "ffprobe", path, err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrDecode, "", "ffprobe parse", path, err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// Validate inspects path and requires a decodable video stream with a
// positive, finite duration.
func (p *Prober) Validate(ctx context.Context, path string) (Result, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return Result{}, err
	}
	if result.VideoStreamCount() == 0 {
		return Result{}, services.Wrap(services.ErrDecode, "", "ffprobe validate", fmt.Sprintf("%s has no video stream", path), nil)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return Result{}, services.Wrap(services.ErrDecode, "", "ffprobe validate", fmt.Sprintf("%s has no usable duration", path), nil)
	}
	return result, nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

// HasAudio reports whether at least one audio stream is present.
func (r Result) HasAudio() bool {
	return r.AudioStreamCount() > 0
}

func (r Result) countStreams(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// VideoSize returns the dimensions of the first video stream.
func (r Result) VideoSize() (int, int) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream.Width, stream.Height
		}
	}
	return 0, 0
}

// DurationSeconds returns the container duration in seconds, falling back to
// the longest stream duration. Returns 0 when unavailable and NaN when the
// reported value is malformed.
func (r Result) DurationSeconds() float64 {
	if strings.TrimSpace(r.Format.Duration) != "" {
		return parseFloat(r.Format.Duration)
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if d := parseFloat(stream.Duration); !math.IsNaN(d) && d > longest {
			longest = d
		}
	}
	return longest
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
