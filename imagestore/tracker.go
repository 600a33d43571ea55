package imagestore

// InUseTracker records which images the frames in flight draw.
//
// There is one usage map per frame slot (image → remaining frames).
// MarkInUse sets the counter to the frames-in-flight count. Sweep, run once
// per frame, counts down every entry not marked during the current frame,
// so an image drawn in frame f is still live through frame f+framesInFlight,
// by which point frame f is known to have completed.
//
// Sweep counts down the maps of all slots, not only the slot ending its
// frame. Counters then measure frames elapsed rather than visits to one
// slot, and the release lag stays framesInFlight frames even when the
// caller's slot order is irregular. Entries marked during the current frame
// are skipped, so a frame never counts down its own marks.
type InUseTracker struct {
	slots          []map[*Image]int
	fresh          map[freshKey]bool
	framesInFlight int
}

type freshKey struct {
	img  *Image
	slot int
}

// NewInUseTracker creates a tracker for framesInFlight slots.
func NewInUseTracker(framesInFlight int) *InUseTracker {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	t := &InUseTracker{
		slots:          make([]map[*Image]int, framesInFlight),
		fresh:          make(map[freshKey]bool),
		framesInFlight: framesInFlight,
	}
	for i := range t.slots {
		t.slots[i] = make(map[*Image]int)
	}
	return t
}

// MarkInUse records that img is drawn in the frame recorded on slot.
func (t *InUseTracker) MarkInUse(img *Image, slot int) {
	slot %= len(t.slots)
	t.slots[slot][img] = t.framesInFlight
	t.fresh[freshKey{img, slot}] = true
}

// InUse reports whether any slot still counts img.
func (t *InUseTracker) InUse(img *Image) bool {
	for _, m := range t.slots {
		if _, ok := m[img]; ok {
			return true
		}
	}
	return false
}

// Sweep counts down every entry not marked during the current frame and
// drops those reaching zero. It ends the current frame.
func (t *InUseTracker) Sweep() {
	for slot, m := range t.slots {
		for img, n := range m {
			if t.fresh[freshKey{img, slot}] {
				continue
			}
			if n <= 1 {
				delete(m, img)
				continue
			}
			m[img] = n - 1
		}
	}
	clear(t.fresh)
}

// Forget drops img from every slot.
func (t *InUseTracker) Forget(img *Image) {
	for slot, m := range t.slots {
		delete(m, img)
		delete(t.fresh, freshKey{img, slot})
	}
}

// Len returns the number of tracked entries across all slots.
func (t *InUseTracker) Len() int {
	n := 0
	for _, m := range t.slots {
		n += len(m)
	}
	return n
}
