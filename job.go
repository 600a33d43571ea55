package uistream

import (
	"fmt"

	"github.com/gogpu/uistream/imagestore"
)

// JobKind tags a draw job.
type JobKind uint8

// Job kinds.
const (
	// JobUntextured draws with the fallback descriptor, which samples the
	// glyph atlas: rectangles and text.
	JobUntextured JobKind = iota

	// JobTextured draws one image through a descriptor ring slot.
	JobTextured
)

func (k JobKind) String() string {
	switch k {
	case JobUntextured:
		return "untextured"
	case JobTextured:
		return "textured"
	default:
		return fmt.Sprintf("JobKind(%d)", k)
	}
}

// Job is one contiguous run of vertices drawn with one binding.
type Job struct {
	Kind     JobKind
	Vertices int

	// Image and Slot are set for textured jobs.
	Image *imagestore.Image
	Slot  int
}

func (j Job) String() string {
	if j.Kind == JobTextured {
		return fmt.Sprintf("Job(textured %d slot=%d %s)", j.Vertices, j.Slot, j.Image.Path())
	}
	return fmt.Sprintf("Job(untextured %d)", j.Vertices)
}

// jobList is the ordered job list of one frame.
type jobList []Job

// untextured appends n vertices, extending the trailing job when it is
// untextured.
func (l jobList) untextured(n int) jobList {
	if last := len(l) - 1; last >= 0 && l[last].Kind == JobUntextured {
		l[last].Vertices += n
		return l
	}
	return append(l, Job{Kind: JobUntextured, Vertices: n})
}

// vertices returns the total vertex count.
func (l jobList) vertices() int {
	n := 0
	for _, j := range l {
		n += j.Vertices
	}
	return n
}
