package app

import (
	"errors"
	"testing"
)

func TestComponentError_Error(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name     string
		err      *ComponentError
		expected string
	}{
		{"nil error", nil, ""},
		{"component only", &ComponentError{Component: "watcher"}, "watcher"},
		{"component and action", &ComponentError{Component: "watcher", Action: "start"}, "watcher: start"},
		{"component and err", &ComponentError{Component: "config", Err: base}, "config: boom"},
		{"full", NewComponentError("config", "validate", base), "config: validate: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestComponentError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewComponentError("setup", "", base)
	if !errors.Is(err, base) {
		t.Error("errors.Is should find the wrapped error")
	}

	var nilErr *ComponentError
	if nilErr.Unwrap() != nil {
		t.Error("nil ComponentError should unwrap to nil")
	}
}
