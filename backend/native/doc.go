// Package native implements gpucore.Device on top of the gogpu/wgpu HAL.
//
// Resources are addressed by gpucore IDs and mapped to hal objects, the
// same way for every resource kind. Host-visible buffers
// (gpucore.BufferUsageMapWrite) live in CPU memory: copies out of them are
// turned into queue writes that run ahead of the command buffer they were
// recorded into.
//
// Draw commands need a color target. Hosts set it on the recorder returned
// by BeginCommands before handing it to the UI pass:
//
//	rec, _ := dev.BeginCommands("frame")
//	rec.(*native.Recorder).SetTarget(swapchainView)
//	pass.Execute(gpucore.Frame{Slot: slot, Commands: rec})
//	dev.Submit(rec, fence)
package native
