package native

import "errors"

var (
	// ErrNilHALDevice is returned when the device or queue is nil.
	ErrNilHALDevice = errors.New("native: hal device is nil")

	// ErrNoHALProvider is returned when a device provider does not expose
	// its hal device and queue.
	ErrNoHALProvider = errors.New("native: provider does not expose hal types")

	// ErrUnknownResource is returned for IDs this device never issued or
	// already destroyed.
	ErrUnknownResource = errors.New("native: unknown resource")

	// ErrHostBuffer is returned for operations a host-visible buffer does
	// not support, such as being a copy destination.
	ErrHostBuffer = errors.New("native: unsupported on host-visible buffer")

	// ErrNoTarget is returned when draw commands were recorded without a
	// color target.
	ErrNoTarget = errors.New("native: no render target")

	// ErrForeignRecorder is returned when Submit gets a recorder created
	// by another device.
	ErrForeignRecorder = errors.New("native: recorder belongs to another device")

	// ErrUnsupportedFormat is returned for formats the backend cannot map.
	ErrUnsupportedFormat = errors.New("native: unsupported format")
)
