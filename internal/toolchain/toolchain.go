package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

const fontLookupTimeout = 10 * time.Second

// Toolchain resolves the ffmpeg and ffprobe binaries and caption fonts. Each
// lookup runs at most once per process and its result, success or failure,
// is cached.
type Toolchain struct {
	ffmpeg   string
	ffprobe  string
	fontPath string
	fontDirs []string

	exec     Executor
	lookPath func(string) (string, error)

	binaryOnce sync.Once
	binaryPath string
	binaryErr  error

	probeOnce sync.Once
	probePath string
	probeErr  error

	fontMu sync.Mutex
	fonts  map[string]*fontResult
}

type fontResult struct {
	once sync.Once
	path string
	err  error
}

// Option configures the toolchain.
type Option func(*Toolchain)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) Option {
	return func(t *Toolchain) {
		if executor != nil {
			t.exec = executor
		}
	}
}

// WithLookPath overrides PATH resolution (primarily for tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(t *Toolchain) {
		if fn != nil {
			t.lookPath = fn
		}
	}
}

// New constructs a toolchain from media settings. Nothing is resolved yet.
func New(media config.Media, opts ...Option) *Toolchain {
	t := &Toolchain{
		ffmpeg:   strings.TrimSpace(media.FFmpegBinary),
		ffprobe:  strings.TrimSpace(media.FFprobeBinary),
		fontPath: strings.TrimSpace(media.FontPath),
		fontDirs: append([]string(nil), media.FontDirs...),
		exec:     CommandExecutor{},
		lookPath: exec.LookPath,
		fonts:    make(map[string]*fontResult),
	}
	if t.ffmpeg == "" {
		t.ffmpeg = "ffmpeg"
	}
	if t.ffprobe == "" {
		t.ffprobe = "ffprobe"
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Executor returns the executor used for media commands.
func (t *Toolchain) Executor() Executor {
	return t.exec
}

// LocateBinary returns the absolute path of the ffmpeg binary.
func (t *Toolchain) LocateBinary() (string, error) {
	t.binaryOnce.Do(func() {
		t.binaryPath, t.binaryErr = t.resolveBinary("ffmpeg", t.ffmpeg)
	})
	return t.binaryPath, t.binaryErr
}

// LocateProbe returns the absolute path of the ffprobe binary.
func (t *Toolchain) LocateProbe() (string, error) {
	t.probeOnce.Do(func() {
		t.probePath, t.probeErr = t.resolveBinary("ffprobe", t.ffprobe)
	})
	return t.probePath, t.probeErr
}

func (t *Toolchain) resolveBinary(label, command string) (string, error) {
	path, err := t.lookPath(command)
	if err != nil {
		return "", services.Wrap(services.ErrToolNotFound, "toolchain", "locate "+label, fmt.Sprintf("binary %q not found", command), err)
	}
	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}
	return path, nil
}

// LocateFont resolves a fontconfig-style name such as
// "Liberation Sans:style=Bold" to a font file. Lookup order is the configured
// font_path, then fc-match, then a scan of the configured font directories.
func (t *Toolchain) LocateFont(name string) (string, error) {
	name = strings.TrimSpace(name)
	t.fontMu.Lock()
	result, ok := t.fonts[name]
	if !ok {
		result = &fontResult{}
		t.fonts[name] = result
	}
	t.fontMu.Unlock()

	result.once.Do(func() {
		result.path, result.err = t.resolveFont(name)
	})
	return result.path, result.err
}

func (t *Toolchain) resolveFont(name string) (string, error) {
	if t.fontPath != "" {
		if fileUsable(t.fontPath) {
			return t.fontPath, nil
		}
		return "", services.Wrap(services.ErrFontNotFound, "toolchain", "locate font", fmt.Sprintf("media.font_path %q is missing or empty", t.fontPath), nil)
	}
	if name == "" {
		return "", services.Wrap(services.ErrFontNotFound, "toolchain", "locate font", "no font name configured", nil)
	}
	if path, ok := t.fcMatch(name); ok {
		return path, nil
	}
	if path, ok := scanFontDirs(t.fontDirs, name); ok {
		return path, nil
	}
	return "", services.Wrap(services.ErrFontNotFound, "toolchain", "locate font", fmt.Sprintf("font %q not found via fc-match or in %s", name, strings.Join(t.fontDirs, ", ")), nil)
}

// fcMatch accepts the fontconfig answer only when the family matches; fc-match
// otherwise returns a fallback face silently.
func (t *Toolchain) fcMatch(name string) (string, bool) {
	bin, err := t.lookPath("fc-match")
	if err != nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), fontLookupTimeout)
	defer cancel()
	out, err := t.exec.Run(ctx, bin, []string{"-f", "%{family}\n%{file}\n", name})
	if err != nil {
		return "", false
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return "", false
	}
	family, file := strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1])
	wantFamily, _ := splitFontName(name)
	if !familyMatches(family, wantFamily) || !fileUsable(file) {
		return "", false
	}
	return file, true
}

func scanFontDirs(dirs []string, name string) (string, bool) {
	family, style := splitFontName(name)
	want := normalizeFontKey(family + style)
	wantPlain := normalizeFontKey(family)
	var fallback string
	for _, dir := range dirs {
		var found string
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".ttf" && ext != ".otf" {
				return nil
			}
			key := normalizeFontKey(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
			switch {
			case key == want:
				found = path
				return fs.SkipAll
			case style == "" && key == wantPlain+"regular" && fallback == "":
				fallback = path
			}
			return nil
		})
		if found != "" && fileUsable(found) {
			return found, true
		}
	}
	if fallback != "" && fileUsable(fallback) {
		return fallback, true
	}
	return "", false
}

// splitFontName splits "Family:style=Bold" into family and style.
func splitFontName(name string) (string, string) {
	family, rest, _ := strings.Cut(name, ":")
	style := ""
	for _, part := range strings.Split(rest, ":") {
		if key, value, ok := strings.Cut(part, "="); ok && strings.EqualFold(strings.TrimSpace(key), "style") {
			style = strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(family), style
}

func familyMatches(got, want string) bool {
	want = normalizeFontKey(want)
	for _, candidate := range strings.Split(got, ",") {
		if normalizeFontKey(candidate) == want {
			return true
		}
	}
	return false
}

func normalizeFontKey(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if r == ' ' || r == '-' || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fileUsable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Report summarizes toolchain readiness for status output.
type Report struct {
	FFmpeg   string
	FFprobe  string
	Font     string
	FontName string
	Problems []string
	Resolved bool

	errs []error
}

// Check resolves every component and reports what is missing. Failures are
// cached like any other lookup.
func (t *Toolchain) Check(fontName string) Report {
	report := Report{FontName: fontName}
	record := func(err error) {
		report.errs = append(report.errs, err)
		report.Problems = append(report.Problems, err.Error())
	}
	if path, err := t.LocateBinary(); err != nil {
		record(err)
	} else {
		report.FFmpeg = path
	}
	if path, err := t.LocateProbe(); err != nil {
		record(err)
	} else {
		report.FFprobe = path
	}
	if path, err := t.LocateFont(fontName); err != nil {
		record(err)
	} else {
		report.Font = path
	}
	report.Resolved = len(report.errs) == 0
	return report
}

// Err joins the report problems into a single error, or nil when resolved.
func (r Report) Err() error {
	if r.Resolved {
		return nil
	}
	return errors.Join(r.errs...)
}
