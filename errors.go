package uistream

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the UI pass.
var (
	// ErrCapacity wraps vertex stream and descriptor ring exhaustion.
	ErrCapacity = errors.New("uistream: capacity exhausted")

	// ErrNotInitialized is returned before OnInitDevice or after
	// OnDestroyDevice.
	ErrNotInitialized = errors.New("uistream: device not initialized")

	// ErrAlreadyInitialized is returned by a second OnInitDevice.
	ErrAlreadyInitialized = errors.New("uistream: device already initialized")

	// ErrSpanOverrun is returned when submissions exceed the vertices
	// requested for the frame.
	ErrSpanOverrun = errors.New("uistream: submission exceeds requested vertices")

	// ErrInvalidImage is returned for nil or freed images.
	ErrInvalidImage = errors.New("uistream: invalid image")

	// ErrInvalidSwapchain is returned for swapchains without a size or
	// format.
	ErrInvalidSwapchain = errors.New("uistream: invalid swapchain")
)

// LeakReport lists the images still cached at OnDestroyDevice. Each was
// logged and force-released.
type LeakReport struct {
	Images []string
}

// Count returns the number of leaked images.
func (r LeakReport) Count() int { return len(r.Images) }

// Err returns nil without leaks, or an error naming the leaked images.
func (r LeakReport) Err() error {
	if len(r.Images) == 0 {
		return nil
	}
	return fmt.Errorf("uistream: %d images leaked: %s", len(r.Images), strings.Join(r.Images, ", "))
}
