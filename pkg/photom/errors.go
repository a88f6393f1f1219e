package photom

import (
	"errors"
	"fmt"
)

var (
	ErrNoFrames          = errors.New("no frames")
	ErrShapeMismatch     = errors.New("frame dimensions differ")
	ErrInsufficientStars = errors.New("insufficient stars")
	ErrNoStars           = errors.New("no stars to calibrate")
	ErrInvalidLabel      = errors.New("invalid label")
	ErrUnknownStar       = errors.New("unknown star")
	ErrSessionNotFound   = errors.New("session not found")
)

// InsufficientStarsError reports that fewer stars survived cross-frame
// matching than the configured minimum.
type InsufficientStarsError struct {
	Found    int
	Required int
}

func (e *InsufficientStarsError) Error() string {
	return fmt.Sprintf("only %d star(s) found in every frame, need at least %d: "+
		"lower n_stars_min, check FWHM and threshold, or remove bad frames", e.Found, e.Required)
}

func (e *InsufficientStarsError) Unwrap() error { return ErrInsufficientStars }

// A Warning is a non-fatal problem; the pipeline carries on and hands
// all of them back in the Result.
type Warning struct {
	Stage   string
	Message string
}

func (w Warning) String() string { return w.Stage + ": " + w.Message }
