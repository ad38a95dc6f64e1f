package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetch marks a score that could not be retrieved from a URL or the vault.
	ErrFetch = errors.New("fetch error")
	// ErrSelection marks a measure range the engine refused to apply.
	ErrSelection = errors.New("selection error")
	// ErrAudioGeneration marks an engine that produced no audio for a score.
	ErrAudioGeneration = errors.New("audio generation error")
	// ErrUnsupportedPlatform marks an action the host platform cannot perform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrEngine              = errors.New("engine error")
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrEngine
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the marker carried by err, used in notices
// and API error payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrSelection):
		return "selection"
	case errors.Is(err, ErrAudioGeneration):
		return "audio"
	case errors.Is(err, ErrUnsupportedPlatform):
		return "platform"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "engine"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
