package captions

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Style is the resolved caption look.
type Style struct {
	FontFile  string
	FontSize  int
	WrapWidth int
}

// FilterGraph renders one drawtext per caption, chained. Each caption is
// shown for t in [start, end) so adjacent windows never draw together.
// Expansion is off so caption text is drawn verbatim.
func FilterGraph(captions []Caption, style Style) string {
	if len(captions) == 0 {
		return "null"
	}
	parts := make([]string, 0, len(captions))
	for _, c := range captions {
		text := Wrap(c.Text, style.WrapWidth)
		parts = append(parts, fmt.Sprintf(
			"drawtext=fontfile='%s':expansion=none:text='%s':fontsize=%d:fontcolor=white:borderw=4:bordercolor=black:line_spacing=10:x=(w-text_w)/2:y=(h-text_h)/2:enable='gte(t,%s)*lt(t,%s)'",
			EscapeText(style.FontFile), EscapeText(text), style.FontSize,
			formatSeconds(c.Start), formatSeconds(c.End()),
		))
	}
	return strings.Join(parts, ",")
}

// EscapeText escapes a value for a single-quoted drawtext option. ffmpeg
// unescapes twice: the graph parser strips the quotes, then the option
// parser splits on ':' and consumes backslashes. An apostrophe therefore
// becomes \' for the option parser, with the quote itself closed and
// reopened around it for the graph parser.
func EscapeText(text string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'\''`,
		`:`, `\:`,
	)
	return r.Replace(text)
}

// Wrap normalizes text to NFC and breaks it into lines no wider than limit
// display columns. East Asian wide runes count as two columns; a single word
// wider than the limit gets its own line.
func Wrap(text string, limit int) string {
	words := strings.Fields(norm.NFC.String(text))
	if len(words) == 0 {
		return ""
	}
	if limit <= 0 {
		return strings.Join(words, " ")
	}
	var (
		lines   []string
		current strings.Builder
		used    int
	)
	for _, word := range words {
		w := displayWidth(word)
		if used > 0 && used+1+w > limit {
			lines = append(lines, current.String())
			current.Reset()
			used = 0
		}
		if used > 0 {
			current.WriteByte(' ')
			used++
		}
		current.WriteString(word)
		used += w
	}
	lines = append(lines, current.String())
	return strings.Join(lines, "\n")
}

func displayWidth(s string) int {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// RenderSRT writes captions as SubRip cues.
func RenderSRT(captions []Caption) string {
	var b strings.Builder
	for i, c := range captions {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(c.Start), srtTimestamp(c.End()), strings.TrimSpace(c.Text))
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
