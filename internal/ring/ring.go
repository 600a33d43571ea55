// Package ring implements the cursor arithmetic shared by the circular
// pools: the vertex stream, the descriptor ring and the staging uploads.
//
// A Ring hands out claims at its head. Each claim is tagged with the frame
// that produced it and stays live until Retire reports that frame complete,
// so a producer running ahead of the GPU can never overwrite data a frame
// in flight still reads.
package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrTooLarge is returned when a claim is larger than the whole ring.
	ErrTooLarge = errors.New("ring: request exceeds capacity")

	// ErrFull is returned when a claim would overlap live claims.
	ErrFull = errors.New("ring: no room without overwriting live claims")
)

// Span is a contiguous run of slots.
type Span struct {
	Offset int
	Len    int
}

// End returns the slot one past the span.
func (s Span) End() int { return s.Offset + s.Len }

// Empty reports whether the span covers no slots.
func (s Span) Empty() bool { return s.Len == 0 }

// String returns a string representation of the span.
func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Offset, s.End())
}

// Split returns the at most two contiguous ranges covered by n slots
// starting at offset in a ring of the given capacity. second is empty
// unless the run crosses the wrap boundary.
func Split(offset, n, capacity int) (first, second Span) {
	if n <= 0 || capacity <= 0 {
		return Span{}, Span{}
	}
	offset %= capacity
	if offset+n <= capacity {
		return Span{Offset: offset, Len: n}, Span{}
	}
	head := capacity - offset
	return Span{Offset: offset, Len: head}, Span{Offset: 0, Len: n - head}
}

type claim struct {
	frame uint64
	cost  int
}

// Ring tracks live claims over a fixed number of slots.
// It is not safe for concurrent use.
type Ring struct {
	capacity int
	head     int
	used     int
	wraps    int
	claims   []claim
}

// New creates a ring with the given number of slots.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		capacity: capacity,
		claims:   make([]claim, 0, 16),
	}
}

// Claim reserves n contiguous slots for frame, starting at the head. When
// the slots left before the end of the ring are too few, the claim starts
// at slot 0 and the skipped tail stays reserved with it while older claims
// are live.
func (r *Ring) Claim(n int, frame uint64) (Span, error) {
	if n > r.capacity {
		return Span{}, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, r.capacity)
	}
	if n <= 0 {
		return Span{Offset: r.head}, nil
	}

	offset, cost := r.head, n
	if offset+n > r.capacity {
		if r.used > 0 {
			cost += r.capacity - offset
		}
		offset = 0
	}
	if r.used+cost > r.capacity {
		return Span{}, fmt.Errorf("%w: need %d, free %d", ErrFull, cost, r.capacity-r.used)
	}
	if offset == 0 && r.head != 0 {
		r.wraps++
	}

	r.used += cost
	r.head = (offset + n) % r.capacity
	if last := len(r.claims) - 1; last >= 0 && r.claims[last].frame == frame {
		r.claims[last].cost += cost
	} else {
		r.claims = append(r.claims, claim{frame: frame, cost: cost})
	}
	return Span{Offset: offset, Len: n}, nil
}

// Retire releases every claim made for a frame up to and including
// completed. Claims are released oldest first.
func (r *Ring) Retire(completed uint64) {
	k := 0
	for k < len(r.claims) && r.claims[k].frame <= completed {
		r.used -= r.claims[k].cost
		k++
	}
	if k == 0 {
		return
	}
	n := copy(r.claims, r.claims[k:])
	r.claims = r.claims[:n]
}

// Renew moves the newest claim to frame, keeping it live while a later
// frame still reads it.
func (r *Ring) Renew(frame uint64) {
	if last := len(r.claims) - 1; last >= 0 && r.claims[last].frame < frame {
		r.claims[last].frame = frame
	}
}

// Reset drops every claim and moves the head back to slot 0.
func (r *Ring) Reset() {
	r.head, r.used, r.wraps = 0, 0, 0
	r.claims = r.claims[:0]
}

// Capacity returns the number of slots.
func (r *Ring) Capacity() int { return r.capacity }

// Head returns the slot the next claim starts from.
func (r *Ring) Head() int { return r.head }

// Live returns the number of reserved slots.
func (r *Ring) Live() int { return r.used }

// Free returns the number of unreserved slots.
func (r *Ring) Free() int { return r.capacity - r.used }

// Wraps returns how many claims skipped the tail of the ring.
func (r *Ring) Wraps() int { return r.wraps }
