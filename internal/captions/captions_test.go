package captions_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/assembler"
	"reelsmith/internal/captions"
	"reelsmith/internal/job"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
)

func locateFFmpeg() (string, error) { return "ffmpeg", nil }

func fontAt(path string) func(string) (string, error) {
	return func(string) (string, error) { return path, nil }
}

func setup(t *testing.T, seconds float64) (string, job.MediaHandle) {
	t.Helper()
	dir := t.TempDir()
	clip := filepath.Join(dir, "assembled.mp4")
	testsupport.WriteFakeClip(t, clip, seconds, true)
	return dir, job.MediaHandle{Location: clip, Format: job.FormatMP4H264}
}

func TestBurnRendersArtifactAndSubtitles(t *testing.T) {
	dir, clip := setup(t, 10)
	fake := &testsupport.FakeMedia{}
	burner := captions.NewWithExecutor(locateFFmpeg, fontAt("/fonts/LiberationSans-Bold.ttf"), fake, fake, captions.Settings{FontName: "Liberation Sans:style=Bold"}, nil)

	req := captions.Request{
		Clip: clip,
		Captions: []captions.Caption{
			{Text: "The city wakes up", Start: 0, Duration: 5},
			{Text: "Neon everywhere, all day", Start: 5, Duration: 5},
		},
		Output:    filepath.Join(dir, "captioned.mp4"),
		Subtitles: filepath.Join(dir, "captions.srt"),
	}
	result, err := burner.Burn(context.Background(), req)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if result.Artifact.Location != req.Output || result.Artifact.Format != job.FormatMP4H264 {
		t.Fatalf("unexpected artifact %+v", result.Artifact)
	}
	if result.Duration != 10 {
		t.Fatalf("expected 10s artifact, got %v", result.Duration)
	}
	if got := testsupport.ClipDuration(t, clip.Location); got != 10 {
		t.Fatalf("input clip modified: %v", got)
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(calls))
	}
	graph := argAfter(calls[0], "-vf")
	for _, want := range []string{
		"fontfile='/fonts/LiberationSans-Bold.ttf'",
		"text='The city wakes up'",
		"text='Neon everywhere, all day'",
		"fontsize=71",
		"x=(w-text_w)/2",
		"enable='gte(t,0.000)*lt(t,5.000)'",
		"enable='gte(t,5.000)*lt(t,10.000)'",
	} {
		if !strings.Contains(graph, want) {
			t.Fatalf("filter graph missing %q:\n%s", want, graph)
		}
	}

	srt, err := os.ReadFile(req.Subtitles)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	wantSRT := "1\n00:00:00,000 --> 00:00:05,000\nThe city wakes up\n\n2\n00:00:05,000 --> 00:00:10,000\nNeon everywhere, all day\n\n"
	if string(srt) != wantSRT {
		t.Fatalf("unexpected srt:\n%q", srt)
	}
	if result.Subtitles.Format != job.FormatSRT {
		t.Fatalf("unexpected subtitles handle %+v", result.Subtitles)
	}
}

func TestBurnRejectsWindowAfterClipBeforeRendering(t *testing.T) {
	dir, clip := setup(t, 10)
	fake := &testsupport.FakeMedia{}
	burner := captions.NewWithExecutor(locateFFmpeg, fontAt("/fonts/bold.ttf"), fake, fake, captions.Settings{}, nil)

	_, err := burner.Burn(context.Background(), captions.Request{
		Clip:     clip,
		Captions: []captions.Caption{{Text: "late", Start: 12, Duration: 2}},
		Output:   filepath.Join(dir, "captioned.mp4"),
	})
	if !errors.Is(err, services.ErrTimeWindow) {
		t.Fatalf("expected time window error, got %v", err)
	}
	if n := len(fake.Calls()); n != 0 {
		t.Fatalf("expected no render, got %d calls", n)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "captioned.mp4")); !os.IsNotExist(statErr) {
		t.Fatalf("no artifact expected, stat err %v", statErr)
	}
}

func TestBurnMissingFont(t *testing.T) {
	dir, clip := setup(t, 10)
	fake := &testsupport.FakeMedia{}
	missing := func(name string) (string, error) {
		return "", services.Wrap(services.ErrFontNotFound, "toolchain", "locate font", name, nil)
	}
	burner := captions.NewWithExecutor(locateFFmpeg, missing, fake, fake, captions.Settings{FontName: "Nope Sans"}, nil)

	_, err := burner.Burn(context.Background(), captions.Request{
		Clip:     clip,
		Captions: []captions.Caption{{Text: "hi", Start: 0, Duration: 2}},
		Output:   filepath.Join(dir, "captioned.mp4"),
	})
	if services.KindOf(err) != services.KindFontMissing {
		t.Fatalf("expected font missing, got %v", err)
	}
	if n := len(fake.Calls()); n != 0 {
		t.Fatalf("expected no render, got %d calls", n)
	}
}

func TestBurnRenderFailure(t *testing.T) {
	dir, clip := setup(t, 10)
	fake := &testsupport.FakeMedia{FailOn: func([]string) error { return errors.New("exit status 1") }}
	burner := captions.NewWithExecutor(locateFFmpeg, fontAt("/fonts/bold.ttf"), fake, fake, captions.Settings{}, nil)

	_, err := burner.Burn(context.Background(), captions.Request{
		Clip:     clip,
		Captions: []captions.Caption{{Text: "hi", Start: 0, Duration: 2}},
		Output:   filepath.Join(dir, "captioned.mp4"),
	})
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("expected render error, got %v", err)
	}
}

func TestBurnMissingClip(t *testing.T) {
	dir := t.TempDir()
	fake := &testsupport.FakeMedia{}
	burner := captions.NewWithExecutor(locateFFmpeg, fontAt("/fonts/bold.ttf"), fake, fake, captions.Settings{}, nil)

	_, err := burner.Burn(context.Background(), captions.Request{
		Clip:   job.MediaHandle{Location: filepath.Join(dir, "nope.mp4"), Format: job.FormatMP4H264},
		Output: filepath.Join(dir, "captioned.mp4"),
	})
	if !errors.Is(err, services.ErrMissingInput) {
		t.Fatalf("expected missing input, got %v", err)
	}
}

func TestValidateWindows(t *testing.T) {
	cases := []struct {
		name     string
		captions []captions.Caption
		ok       bool
	}{
		{"contiguous", []captions.Caption{{Start: 0, Duration: 5}, {Start: 5, Duration: 5}}, true},
		{"rounding at end", []captions.Caption{{Start: 0, Duration: 10.02}}, true},
		{"negative start", []captions.Caption{{Start: -1, Duration: 2}}, false},
		{"empty window", []captions.Caption{{Start: 1, Duration: 0}}, false},
		{"starts after end", []captions.Caption{{Start: 11, Duration: 1}}, false},
		{"runs past end", []captions.Caption{{Start: 8, Duration: 4}}, false},
		{"overlap", []captions.Caption{{Start: 0, Duration: 6}, {Start: 5, Duration: 2}}, false},
		{"out of order", []captions.Caption{{Start: 5, Duration: 2}, {Start: 0, Duration: 2}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := captions.ValidateWindows(tc.captions, 10)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, services.ErrTimeWindow) {
				t.Fatalf("expected time window error, got %v", err)
			}
		})
	}
}

func TestEscapeText(t *testing.T) {
	got := captions.EscapeText(`it's 5:00, 100% \o/`)
	want := `it\'\''s 5\:00, 100% \\o/`
	if got != want {
		t.Fatalf("EscapeText = %q, want %q", got, want)
	}
}

// ffmpegToken splits one token the way ffmpeg does at each parsing level:
// single quotes group literally and a backslash outside quotes keeps the next
// byte verbatim.
func ffmpegToken(s, terms string) (string, string) {
	var b strings.Builder
	i := 0
	for i < len(s) && !strings.ContainsRune(terms, rune(s[i])) {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				b.WriteByte(s[i+1])
			}
			i += 2
		case '\'':
			i++
			for i < len(s) && s[i] != '\'' {
				b.WriteByte(s[i])
				i++
			}
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	if i > len(s) {
		i = len(s)
	}
	return b.String(), s[i:]
}

// parseGraph decodes a chain of filters into their option maps.
func parseGraph(t *testing.T, graph string) []map[string]string {
	t.Helper()
	var filters []map[string]string
	for graph != "" {
		name, rest, ok := strings.Cut(graph, "=")
		if !ok || name != "drawtext" {
			t.Fatalf("unexpected filter in %q", graph)
		}
		args, tail := ffmpegToken(rest, "[],;")
		opts := map[string]string{}
		for args != "" {
			key, value, ok := strings.Cut(args, "=")
			if !ok {
				t.Fatalf("option without value in %q", args)
			}
			opts[key], args = ffmpegToken(value, ":")
			args = strings.TrimPrefix(args, ":")
		}
		filters = append(filters, opts)
		graph = strings.TrimPrefix(tail, ",")
	}
	return filters
}

func TestFilterGraphSurvivesApostrophes(t *testing.T) {
	style := captions.Style{FontFile: `/fonts/it's:bold.ttf`, FontSize: 71}
	graph := captions.FilterGraph([]captions.Caption{
		{Text: `it's 5:00, 100% \o/`, Start: 0, Duration: 2},
		{Text: "don't stop; [now]", Start: 2, Duration: 3},
	}, style)

	filters := parseGraph(t, graph)
	if len(filters) != 2 {
		t.Fatalf("expected 2 drawtext filters, got %d from %q", len(filters), graph)
	}
	want := []map[string]string{
		{"text": `it's 5:00, 100% \o/`, "enable": "gte(t,0.000)*lt(t,2.000)"},
		{"text": "don't stop; [now]", "enable": "gte(t,2.000)*lt(t,5.000)"},
	}
	for i, opts := range filters {
		for key, value := range want[i] {
			if opts[key] != value {
				t.Errorf("filter %d: %s = %q, want %q", i, key, opts[key], value)
			}
		}
		if opts["fontfile"] != style.FontFile || opts["fontsize"] != "71" || opts["expansion"] != "none" {
			t.Errorf("filter %d lost options: %+v", i, opts)
		}
	}
}

func TestWrap(t *testing.T) {
	got := captions.Wrap("the quick brown fox jumps over the lazy dog", 15)
	want := "the quick brown\nfox jumps over\nthe lazy dog"
	if got != want {
		t.Fatalf("Wrap = %q, want %q", got, want)
	}
	if got := captions.Wrap("東京の夜景はきれい", 10); strings.Count(got, "\n") != 0 {
		t.Fatalf("single word should not be split: %q", got)
	}
	if got := captions.Wrap("東京 夜景 きれい", 9); got != "東京 夜景\nきれい" {
		t.Fatalf("wide runes should count double: %q", got)
	}
	composed := captions.Wrap("cafe\u0301", 25)
	if composed != "caf\u00e9" {
		t.Fatalf("expected NFC output, got %q", composed)
	}
}

func TestFromSegmentsSkipsSilentScenes(t *testing.T) {
	segments := []assembler.Segment{
		{Index: 0, Start: 0, Duration: 3},
		{Index: 1, Start: 3, Duration: 3},
		{Index: 2, Start: 6, Duration: 3},
	}
	got := captions.FromSegments([]string{"one", "  ", "three"}, segments)
	if len(got) != 2 || got[0].Text != "one" || got[1].Text != "three" || got[1].Start != 6 {
		t.Fatalf("unexpected captions %+v", got)
	}
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
