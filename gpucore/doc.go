// Package gpucore defines the host renderer abstraction the UI streaming
// subsystem records against.
//
// The host supplies a [Device]: resource creation keyed by opaque IDs
// ([BufferID], [ImageID], [DescriptorID], ...), host-visible buffer
// mappings, fences and command recording through [CommandRecorder].
// Implementations map IDs onto backend objects; backend/native provides
// one on top of gogpu/wgpu/hal.
//
// # Resource Management
//
// Resources are created with Create* methods and must be destroyed with the
// matching Destroy* method. Destroying a resource a submitted command still
// references is undefined behavior, which is why callers defer destruction
// to frame-slot safe points.
//
// # Frames
//
// A [Frame] pairs the frame-in-flight slot index with the command recorder
// for that frame. The host waits on the slot's fence before handing out a
// frame for the same slot again.
package gpucore
