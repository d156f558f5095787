package assembler

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	audioRate    = "48000"
	audioBitrate = "128k"
	videoCRF     = "20"
	videoPreset  = "veryfast"
)

// normalizeArgs renders one scene to the common frame, rate, and codec set so
// the join can stream-concatenate without surprises.
func (a *Assembler) normalizeArgs(index int, input sceneInput, req Request, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if index > 0 && a.settings.TrimLeadSeconds > 0 && input.duration > a.settings.TrimLeadSeconds {
		args = append(args, "-ss", formatSeconds(a.settings.TrimLeadSeconds))
	}
	args = append(args, "-i", input.path)
	if !input.hasAudio {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate="+audioRate)
	}

	video := fmt.Sprintf("[0:v]setpts=PTS/%s,scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,fps=%d,format=yuv420p[v]",
		formatSeconds(req.SpeedFactor), req.Width, req.Height, req.Width, req.Height, a.settings.FPS)
	audioSource := "[0:a]"
	if !input.hasAudio {
		audioSource = "[1:a]"
	}
	audio := audioSource + strings.Join(atempoChain(req.SpeedFactor), ",") + ",aresample=" + audioRate + "[a]"

	args = append(args,
		"-filter_complex", video+";"+audio,
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", videoPreset, "-crf", videoCRF, "-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(a.settings.FPS),
		"-c:a", "aac", "-b:a", audioBitrate, "-ar", audioRate, "-ac", "2",
	)
	if !input.hasAudio {
		args = append(args, "-shortest")
	}
	return append(args, output)
}

// joinArgs concatenates normalized scenes with hard cuts or a crossfade chain.
func (a *Assembler) joinArgs(inputs []string, segments []Segment, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	var graph string
	crossfade := a.crossfade()
	if crossfade > 0 && len(inputs) > 1 {
		graph = crossfadeGraph(segments, crossfade)
	} else {
		graph = concatGraph(len(inputs))
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]", "-map", "[aout]",
		"-c:v", "libx264", "-preset", videoPreset, "-crf", videoCRF, "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", audioBitrate, "-ar", audioRate,
		"-movflags", "+faststart",
		output,
	)
	return args
}

func concatGraph(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:v][%d:a]", i, i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[vout][aout]", n)
	return b.String()
}

// crossfadeGraph chains xfade/acrossfade pairwise. The offset of transition i
// is where segment i+1 starts on the output timeline.
func crossfadeGraph(segments []Segment, crossfade float64) string {
	cf := formatSeconds(crossfade)
	parts := make([]string, 0, 2*(len(segments)-1))
	prevV, prevA := "[0:v]", "[0:a]"
	for i := 1; i < len(segments); i++ {
		outV, outA := fmt.Sprintf("[v%d]", i), fmt.Sprintf("[a%d]", i)
		if i == len(segments)-1 {
			outV, outA = "[vout]", "[aout]"
		}
		parts = append(parts,
			fmt.Sprintf("%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s", prevV, i, cf, formatSeconds(segments[i].Start), outV),
			fmt.Sprintf("%s[%d:a]acrossfade=d=%s%s", prevA, i, cf, outA),
		)
		prevV, prevA = outV, outA
	}
	return strings.Join(parts, ";")
}

// atempoChain splits factor into atempo stages each within [0.5, 2].
func atempoChain(factor float64) []string {
	var stages []string
	for factor > 2 {
		stages = append(stages, "atempo=2")
		factor /= 2
	}
	for factor < 0.5 {
		stages = append(stages, "atempo=0.5")
		factor /= 0.5
	}
	return append(stages, "atempo="+formatSeconds(factor))
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
