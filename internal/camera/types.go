package camera

import (
	"errors"
	"image"
)

// State is the lifecycle state of the coordinated camera.
type State int

const (
	// StateClosed means no handle is held. It is the initial state.
	StateClosed State = iota
	// StatePendingOpen means an open was requested and has not completed.
	StatePendingOpen
	// StateOpen means the handle is valid and usable.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StatePendingOpen:
		return "pending-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Errors
var (
	ErrCloseInterrupted   = errors.New("camera: interrupted while waiting for close")
	ErrInvalidOrientation = errors.New("camera: orientation must be 0, 90, 180 or 270")
)

// Target receives preview frames. It is the render surface a handle draws
// into while previewing.
type Target interface {
	Write(frame image.Image)
}

// PreviewCallback receives a preview frame.
type PreviewCallback func(frame image.Image)

// Handle is an opened camera device. Implementations must tolerate calls
// from more than one goroutine; the coordinator serializes its own calls
// under the resource lock, the auto-focus helper calls AutoFocus and
// CancelAutoFocus from its own goroutine.
type Handle interface {
	// Parameters returns a copy of the current camera parameters.
	Parameters() (*Parameters, error)
	// SetParameters applies p to the device.
	SetParameters(p *Parameters) error
	// SetPreviewCallback registers cb for preview frames; nil clears it.
	SetPreviewCallback(cb PreviewCallback)
	// SetDisplayOrientation rotates preview frames clockwise by degrees.
	SetDisplayOrientation(degrees int) error
	// SetPreviewTarget binds the render target used by StartPreview.
	SetPreviewTarget(t Target) error
	StartPreview() error
	// StopPreview stops the stream. It must not wait for a preview
	// callback to return: the coordinator calls it under the resource
	// lock, and a callback may call back into the coordinator.
	StopPreview() error
	// AutoFocus triggers a single focus sweep and returns without waiting
	// for it to settle.
	AutoFocus() error
	CancelAutoFocus() error
	// Release frees the device. The handle is unusable afterwards.
	Release() error
}

// Device opens camera handles.
type Device interface {
	// Open opens the camera at index.
	Open(index int) (Handle, error)
	// OpenDefault opens the first available camera.
	OpenDefault() (Handle, error)
}

// Owner is told when an open request completes.
type Owner interface {
	// OnCameraOpened is called once per completed open, from the goroutine
	// draining the coordinator's completions. h is nil when no device
	// could be opened.
	OnCameraOpened(h Handle, target Target)
}

// OwnerFunc adapts a function to Owner.
type OwnerFunc func(h Handle, target Target)

// OnCameraOpened calls f(h, target).
func (f OwnerFunc) OnCameraOpened(h Handle, target Target) {
	f(h, target)
}

// AutoFocuser drives periodic focus on a live handle while preview runs.
type AutoFocuser interface {
	Start()
	// Stop cancels focusing. After Stop returns the focuser no longer
	// touches the handle until Start is called again.
	Stop()
}

// AutoFocusFactory builds an AutoFocuser bound to h.
type AutoFocusFactory func(h Handle) AutoFocuser

// ValidOrientation reports whether degrees is a supported display rotation.
func ValidOrientation(degrees int) bool {
	switch degrees {
	case 0, 90, 180, 270:
		return true
	}
	return false
}
