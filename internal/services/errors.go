package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrTransient     = errors.New("transient external failure")
	ErrPermanent     = errors.New("permanent external failure")
	ErrTimeout       = errors.New("timeout")
	ErrToolNotFound  = errors.New("media tool not found")
	ErrFontNotFound  = errors.New("font not found")
	ErrMissingInput  = errors.New("missing input")
	ErrDecode        = errors.New("decode error")
	ErrAssembly      = errors.New("assembly error")
	ErrTimeWindow    = errors.New("caption time window error")
	ErrRender        = errors.New("render error")
	ErrCanceled      = errors.New("canceled")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Kind is the user-visible classification attached to a failed job.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindTransient   Kind = "transient_external"
	KindPermanent   Kind = "permanent_external"
	KindToolchain   Kind = "toolchain"
	KindFontMissing Kind = "font_missing"
	KindMissing     Kind = "missing_input"
	KindDecode      Kind = "decode"
	KindAssembly    Kind = "assembly"
	KindTimeWindow  Kind = "time_window"
	KindRender      Kind = "render"
	KindCanceled    Kind = "canceled"
	KindInternal    Kind = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// SceneError ties a failure to the scene ordinal that produced it.
type SceneError struct {
	Index int
	Err   error
}

func (e *SceneError) Error() string {
	if e == nil || e.Err == nil {
		return "scene failure"
	}
	return fmt.Sprintf("scene %d: %v", e.Index, e.Err)
}

func (e *SceneError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithScene annotates err with the offending scene index. Nil stays nil.
func WithScene(index int, err error) error {
	if err == nil {
		return nil
	}
	return &SceneError{Index: index, Err: err}
}

// SceneIndex reports the scene ordinal carried by err, if any.
func SceneIndex(err error) (int, bool) {
	var sceneErr *SceneError
	if errors.As(err, &sceneErr) {
		return sceneErr.Index, true
	}
	return 0, false
}

// KindOf classifies err into the failure taxonomy. Order matters: the most
// specific marker wins when several are present in the chain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrFontNotFound):
		return KindFontMissing
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrConfiguration):
		return KindToolchain
	case errors.Is(err, ErrTimeWindow):
		return KindTimeWindow
	case errors.Is(err, ErrMissingInput):
		return KindMissing
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrAssembly):
		return KindAssembly
	case errors.Is(err, ErrRender):
		return KindRender
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindInternal
	}
}

// IsTransient reports whether a retry could plausibly succeed.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// ErrorDetails is a flattened description of a classified failure.
// Diagnostics holds raw tool output meant for logs only.
type ErrorDetails struct {
	Kind        Kind
	Message     string
	Hint        string
	SceneIndex  int
	HasScene    bool
	Diagnostics string
	Cause       error
}

// diagnostic is implemented by errors carrying raw output from a tool.
type diagnostic interface {
	Diagnostics() string
}

// Details extracts the classification, scene context, and operator hint from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := KindOf(err)
	details := ErrorDetails{
		Kind:    kind,
		Message: strings.TrimSpace(err.Error()),
		Hint:    Hint(kind),
		Cause:   errors.Unwrap(err),
	}
	if idx, ok := SceneIndex(err); ok {
		details.SceneIndex = idx
		details.HasScene = true
	}
	var diag diagnostic
	if errors.As(err, &diag) {
		details.Diagnostics = strings.TrimSpace(diag.Diagnostics())
	}
	return details
}

// Hint returns the operator guidance for a failure kind.
func Hint(kind Kind) string {
	switch kind {
	case KindValidation:
		return "fix the request and resubmit"
	case KindTransient:
		return "upstream was slow or unavailable; resubmitting may succeed"
	case KindPermanent:
		return "upstream rejected the request; change the prompt before resubmitting"
	case KindToolchain:
		return "install ffmpeg/ffprobe or fix media.ffmpeg_binary"
	case KindFontMissing:
		return "install the caption font or set media.font_path"
	case KindMissing, KindDecode:
		return "a generated scene was missing or unreadable"
	case KindAssembly, KindRender:
		return "inspect the ffmpeg output in the daemon log"
	case KindTimeWindow:
		return "caption timing exceeded the clip duration"
	case KindCanceled:
		return "job was canceled by its owner"
	default:
		return "check daemon logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
