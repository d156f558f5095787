package ffprobe

import (
	"context"
	"errors"
	"math"
	"testing"

	"reelsmith/internal/services"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", Width: 1080, Height: 1920},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
			BitRate:  "32000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 || !result.HasAudio() {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if w, h := result.VideoSize(); w != 1080 || h != 1920 {
		t.Fatalf("unexpected size %dx%d", w, h)
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if result.BitRate() != 32000 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "video", Duration: "5.9"}, {CodecType: "audio", Duration: "6.02"}}}
	if got := result.DurationSeconds(); got != 6.02 {
		t.Fatalf("expected stream fallback 6.02, got %v", got)
	}
}

type stubExecutor struct {
	out []byte
	err error
}

func (s stubExecutor) Run(context.Context, string, []string) ([]byte, error) {
	return s.out, s.err
}

func locateOK() (string, error) { return "/usr/bin/ffprobe", nil }

func TestValidateAcceptsPlayableVideo(t *testing.T) {
	payload := `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":720,"height":1280}],"format":{"duration":"8.0"}}`
	p := NewProber(locateOK, stubExecutor{out: []byte(payload)}, 0)
	result, err := p.Validate(context.Background(), "/tmp/scene.mp4")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.DurationSeconds() != 8 || len(result.RawJSON()) == 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestValidateClassifiesDecodeErrors(t *testing.T) {
	cases := map[string]stubExecutor{
		"probe exit":   {err: errors.New("exit status 1")},
		"bad json":     {out: []byte("not json")},
		"no video":     {out: []byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`)},
		"no duration":  {out: []byte(`{"streams":[{"codec_type":"video"}],"format":{}}`)},
		"bad duration": {out: []byte(`{"streams":[{"codec_type":"video"}],"format":{"duration":"N/A"}}`)},
	}
	for name, exec := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewProber(locateOK, exec, 0)
			_, err := p.Validate(context.Background(), "/tmp/scene.mp4")
			if !errors.Is(err, services.ErrDecode) {
				t.Fatalf("expected decode error, got %v", err)
			}
		})
	}
}

func TestInspectPropagatesMissingTool(t *testing.T) {
	missing := func() (string, error) {
		return "", services.Wrap(services.ErrToolNotFound, "toolchain", "locate ffprobe", "missing", nil)
	}
	p := NewProber(missing, stubExecutor{}, 0)
	if _, err := p.Inspect(context.Background(), "/tmp/x.mp4"); !errors.Is(err, services.ErrToolNotFound) {
		t.Fatalf("expected tool not found, got %v", err)
	}
	if _, err := p.Inspect(context.Background(), " "); !errors.Is(err, services.ErrMissingInput) {
		t.Fatalf("expected missing input for empty path, got %v", err)
	}
}
