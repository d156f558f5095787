package testsupport

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
)

const fakeMediaMagic = "fake-media"

var (
	speedPattern     = regexp.MustCompile(`setpts=PTS/([0-9.]+)`)
	crossfadePattern = regexp.MustCompile(`xfade=transition=fade:duration=([0-9.]+)`)
)

// WriteFakeClip writes a placeholder media file understood by FakeMedia.
func WriteFakeClip(t testing.TB, path string, seconds float64, audio bool) {
	t.Helper()
	WriteContent(t, path, []byte(fakeClip(seconds, audio)))
}

func fakeClip(seconds float64, audio bool) string {
	return fmt.Sprintf("%s duration=%s audio=%t\n", fakeMediaMagic, strconv.FormatFloat(seconds, 'f', -1, 64), audio)
}

// FakeMedia stands in for ffmpeg and ffprobe. It derives output durations
// from the filter graph it is handed (speed change, concat, crossfade) and
// writes placeholder files that its Validate method can read back.
type FakeMedia struct {
	mu    sync.Mutex
	calls [][]string

	// FailOn, when set, is consulted before every command; a non-nil error
	// is returned instead of running.
	FailOn func(args []string) error
	// Hook runs before every command, outside the lock.
	Hook func(ctx context.Context, args []string)
}

// Calls returns a copy of every argument list passed to Run.
func (f *FakeMedia) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Run implements toolchain.Executor.
func (f *FakeMedia) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	if f.Hook != nil {
		f.Hook(ctx, args)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()
	if f.FailOn != nil {
		if err := f.FailOn(args); err != nil {
			return nil, err
		}
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments")
	}

	inputs, err := fakeInputs(args)
	if err != nil {
		return nil, err
	}
	graph := flagValue(args, "-filter_complex")
	if graph == "" {
		graph = flagValue(args, "-vf")
	}

	var duration float64
	switch {
	case strings.Contains(graph, "concat=n="):
		for _, in := range inputs {
			duration += in
		}
	case strings.Contains(graph, "xfade"):
		cf := 0.0
		if m := crossfadePattern.FindStringSubmatch(graph); m != nil {
			cf, _ = strconv.ParseFloat(m[1], 64)
		}
		for _, in := range inputs {
			duration += in
		}
		duration -= float64(len(inputs)-1) * cf
	case speedPattern.MatchString(graph):
		factor, _ := strconv.ParseFloat(speedPattern.FindStringSubmatch(graph)[1], 64)
		if len(inputs) == 0 || factor <= 0 {
			return nil, fmt.Errorf("bad speed graph %q", graph)
		}
		duration = inputs[0] / factor
	default:
		if len(inputs) == 0 {
			return nil, fmt.Errorf("no inputs")
		}
		duration = inputs[0]
	}

	output := args[len(args)-1]
	if err := os.WriteFile(output, []byte(fakeClip(duration, true)), 0o644); err != nil {
		return nil, err
	}
	return nil, nil
}

// Validate implements the prober used by the assembler and caption burner.
func (f *FakeMedia) Validate(ctx context.Context, path string) (ffprobe.Result, error) {
	if err := ctx.Err(); err != nil {
		return ffprobe.Result{}, err
	}
	seconds, audio, err := readFakeClip(path)
	if err != nil {
		return ffprobe.Result{}, services.Wrap(services.ErrDecode, "", "fake probe", path, err)
	}
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{{Index: 0, CodecType: "video", CodecName: "h264", Width: 1080, Height: 1920}},
		Format:  ffprobe.Format{Filename: path, Duration: strconv.FormatFloat(seconds, 'f', -1, 64)},
	}
	if audio {
		result.Streams = append(result.Streams, ffprobe.Stream{Index: 1, CodecType: "audio", CodecName: "aac"})
	}
	return result, nil
}

// ClipDuration reads back the duration recorded in a fake clip.
func ClipDuration(t testing.TB, path string) float64 {
	t.Helper()
	seconds, _, err := readFakeClip(path)
	if err != nil {
		t.Fatalf("read fake clip %s: %v", path, err)
	}
	return seconds
}

func readFakeClip(path string) (float64, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 3 || fields[0] != fakeMediaMagic {
		return 0, false, fmt.Errorf("not a media file")
	}
	seconds, err := strconv.ParseFloat(strings.TrimPrefix(fields[1], "duration="), 64)
	if err != nil {
		return 0, false, err
	}
	return seconds, fields[2] == "audio=true", nil
}

// fakeInputs returns the effective duration of every file input, honoring a
// preceding -ss seek. lavfi inputs are skipped.
func fakeInputs(args []string) ([]float64, error) {
	var (
		durations []float64
		seek      float64
		lavfi     bool
	)
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-ss":
			seek, _ = strconv.ParseFloat(args[i+1], 64)
			i++
		case "-f":
			lavfi = args[i+1] == "lavfi"
			i++
		case "-i":
			if !lavfi {
				seconds, _, err := readFakeClip(args[i+1])
				if err != nil {
					return nil, fmt.Errorf("input %s: %w", args[i+1], err)
				}
				durations = append(durations, seconds-seek)
			}
			seek, lavfi = 0, false
			i++
		}
	}
	return durations, nil
}

func flagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
