package photom

import (
	"fmt"
	"path/filepath"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// A Frame holds the pixels loaded from one exposure, plus the header
// that came with it.
type Frame struct {
	LoadFilename string
	Header       Header

	emath.FloatGrid
}

func (f Frame) String() string {
	return fmt.Sprintf("%s: %dx%d", f.Filename(), f.Dx(), f.Dy())
}

func (f Frame) Filename() string {
	return filepath.Base(f.LoadFilename)
}

// WithGrid returns a copy of the frame carrying different pixels.
func (f Frame) WithGrid(fg emath.FloatGrid) Frame {
	f.FloatGrid = fg
	return f
}

// A FrameSet is the ordered frames of one band, in acquisition order.
type FrameSet struct {
	Band   string
	Frames []Frame
}

func (fs FrameSet) Len() int { return len(fs.Frames) }

func (fs FrameSet) String() string {
	if len(fs.Frames) == 0 {
		return fmt.Sprintf("FrameSet[%s, empty]", fs.Band)
	}
	return fmt.Sprintf("FrameSet[%s, %d x %dx%d]", fs.Band, len(fs.Frames), fs.Frames[0].Dx(), fs.Frames[0].Dy())
}

// Header is the metadata of the first frame, which is what a master
// built from the set inherits.
func (fs FrameSet) Header() Header {
	if len(fs.Frames) == 0 {
		return nil
	}
	return fs.Frames[0].Header
}

// Grids returns the pixel grids of all frames, in order.
func (fs FrameSet) Grids() []emath.FloatGrid {
	out := make([]emath.FloatGrid, len(fs.Frames))
	for i := range fs.Frames {
		out[i] = fs.Frames[i].FloatGrid
	}
	return out
}

// WithGrids returns a new FrameSet whose frames carry the given grids.
func (fs FrameSet) WithGrids(grids []emath.FloatGrid) FrameSet {
	out := FrameSet{Band: fs.Band, Frames: make([]Frame, len(fs.Frames))}
	for i := range fs.Frames {
		out.Frames[i] = fs.Frames[i].WithGrid(grids[i])
	}
	return out
}

// CheckShapes makes sure every grid has the same dimensions.
func CheckShapes(grids ...emath.FloatGrid) error {
	if len(grids) == 0 {
		return ErrNoFrames
	}
	for i := 1; i < len(grids); i++ {
		if !grids[0].SameShape(grids[i]) {
			return fmt.Errorf("grid %d is %dx%d, grid 0 is %dx%d: %w",
				i, grids[i].Dx(), grids[i].Dy(), grids[0].Dx(), grids[0].Dy(), ErrShapeMismatch)
		}
	}
	return nil
}
