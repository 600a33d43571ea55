// Package sampler supplies the point and linear samplers shared by the UI
// pipeline. Samplers are created on first use and live until Close.
package sampler

import (
	"fmt"

	"github.com/gogpu/uistream/gpucore"
)

// Manager hands out shared samplers.
type Manager struct {
	dev    gpucore.Device
	point  gpucore.SamplerID
	linear gpucore.SamplerID
}

// NewManager creates a manager for dev.
func NewManager(dev gpucore.Device) *Manager {
	return &Manager{dev: dev}
}

// Point returns the nearest-filtering sampler, used for the glyph atlas.
func (m *Manager) Point() (gpucore.SamplerID, error) {
	return m.get(&m.point, gpucore.FilterNearest, "ui_point")
}

// Linear returns the linear-filtering sampler, used for images.
func (m *Manager) Linear() (gpucore.SamplerID, error) {
	return m.get(&m.linear, gpucore.FilterLinear, "ui_linear")
}

func (m *Manager) get(slot *gpucore.SamplerID, filter gpucore.Filter, label string) (gpucore.SamplerID, error) {
	if *slot != gpucore.InvalidID {
		return *slot, nil
	}
	id, err := m.dev.CreateSampler(gpucore.SamplerDesc{Label: label, Filter: filter})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create %s sampler: %w", label, err)
	}
	*slot = id
	return id, nil
}

// Close destroys the samplers created so far.
func (m *Manager) Close() {
	for _, s := range []*gpucore.SamplerID{&m.point, &m.linear} {
		if *s != gpucore.InvalidID {
			m.dev.DestroySampler(*s)
			*s = gpucore.InvalidID
		}
	}
}
