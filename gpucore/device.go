package gpucore

import "time"

// Device abstracts the host renderer: resource allocation, host-visible
// memory, descriptor updates, fences and command submission.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and must not be reused
type Device interface {
	// Limits returns the device limits.
	Limits() Limits

	// CreateBuffer creates a buffer. Buffers with BufferUsageMapWrite are
	// host visible and stay mapped for their whole lifetime.
	CreateBuffer(desc BufferDesc) (BufferID, error)
	DestroyBuffer(id BufferID)

	// MapBuffer returns the persistent CPU view of a host-visible buffer.
	MapBuffer(id BufferID) ([]byte, error)

	// WriteBuffer writes data to a buffer through the queue.
	WriteBuffer(id BufferID, offset int, data []byte)

	CreateImage(desc ImageDesc) (ImageID, error)
	DestroyImage(id ImageID)

	// CreateImageView creates a view covering every layer of the image.
	CreateImageView(id ImageID) (ViewID, error)
	DestroyImageView(id ViewID)

	CreateSampler(desc SamplerDesc) (SamplerID, error)
	DestroySampler(id SamplerID)

	CreateDescriptorSet(kind DescriptorKind, label string) (DescriptorID, error)
	DestroyDescriptorSet(id DescriptorID)

	// WriteDescriptors applies a batch of descriptor writes.
	WriteDescriptors(writes []DescriptorWrite) error

	CreatePipeline(desc PipelineDesc) (PipelineID, error)
	DestroyPipeline(id PipelineID)

	CreateFence() (FenceID, error)
	DestroyFence(id FenceID)

	// WaitFence waits until the last submission signaling the fence has
	// completed. It reports false when the timeout elapsed first.
	// A fence nothing was submitted with is already signaled.
	WaitFence(id FenceID, timeout time.Duration) (bool, error)

	// BeginCommands starts a new command recording.
	BeginCommands(label string) (CommandRecorder, error)

	// Submit ends the recording and submits it. The fence, when valid, is
	// signaled once the GPU finished executing it.
	Submit(rec CommandRecorder, fence FenceID) error
}

// CommandRecorder records GPU commands for later submission.
type CommandRecorder interface {
	CopyBuffer(src, dst BufferID, regions []BufferCopy)
	CopyBufferToImage(src BufferID, dst ImageID, regions []BufferImageCopy)
	CopyImage(src, dst ImageID, regions []ImageCopy)

	// BufferBarrier orders prior accesses of buffer as from before later
	// accesses as to.
	BufferBarrier(buf BufferID, from, to BufferUsage)
	ImageBarrier(img ImageID, from, to ImageUsage)

	BindPipeline(id PipelineID)
	BindVertexBuffer(buf BufferID, offset int)

	// BindDescriptor binds set at the given group index.
	BindDescriptor(group int, set DescriptorID)

	// Draw draws vertexCount vertices starting at firstVertex.
	Draw(vertexCount, firstVertex int)
}

// Frame is the frame-in-flight slot being recorded together with its
// command recorder.
type Frame struct {
	Slot     int
	Commands CommandRecorder
}
