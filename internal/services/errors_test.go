package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"reelsmith/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrAssembly, "assembling", "concat", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrAssembly) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"assembling", "concat", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, ""},
		{"validation", services.Wrap(services.ErrValidation, "submit", "", "bad", nil), services.KindValidation},
		{"timeout", services.Wrap(services.ErrTimeout, "video", "poll", "", nil), services.KindTransient},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), services.KindTransient},
		{"permanent", services.Wrap(services.ErrPermanent, "image", "create", "policy", nil), services.KindPermanent},
		{"canceled", fmt.Errorf("x: %w", context.Canceled), services.KindCanceled},
		{"tool", services.Wrap(services.ErrToolNotFound, "", "", "ffmpeg", nil), services.KindToolchain},
		{"font", services.Wrap(services.ErrFontNotFound, "", "", "font", nil), services.KindFontMissing},
		{"window", services.Wrap(services.ErrTimeWindow, "", "", "late", nil), services.KindTimeWindow},
		{"decode over assembly", services.WithScene(1, services.Wrap(services.ErrDecode, "", "", "", nil)), services.KindDecode},
		{"unknown", errors.New("mystery"), services.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetailsCarrySceneIndex(t *testing.T) {
	err := services.WithScene(4, services.Wrap(services.ErrAssembly, "assembling", "normalize", "ffmpeg exited 1", nil))
	details := services.Details(err)
	if !details.HasScene || details.SceneIndex != 4 {
		t.Fatalf("expected scene 4, got %+v", details)
	}
	if details.Kind != services.KindAssembly {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Hint == "" {
		t.Fatal("expected operator hint")
	}
	if !services.IsTransient(services.Wrap(services.ErrTransient, "", "", "", nil)) {
		t.Fatal("expected transient classification")
	}
}
