// Package uistream streams UI text and images to the GPU for a real-time
// renderer.
//
// # Overview
//
// A Pass owns every per-device resource of the UI layer: a growable
// layered glyph atlas fed through staging buffers, a font cache, a
// circular vertex stream, a ring of image descriptor sets and a
// reference-counted image cache. All of it is driven from one submission
// goroutine while several frames are in flight on the GPU; nothing a
// frame in flight may read is overwritten or destroyed before that frame
// has completed.
//
// # Frame cycle
//
//	p := uistream.New(uistream.WithFramesInFlight(2))
//	p.OnInitDevice(dev)
//	p.OnSwapchainCreated(uistream.Swapchain{Width: 1280, Height: 720, Format: gpucore.FormatBGRA8Unorm})
//
//	for each frame:
//	    p.BeginFrame(slot)
//	    vs, _ := p.RequestUIBuffer(n)   // layout writes vertices into vs
//	    p.SubmitRectangle()
//	    p.SubmitText(glyphVertices)
//	    p.SubmitImage(img)
//	    p.UploadGPUData(frame)          // copies, before the render pass
//	    p.Execute(frame)                // draws, inside the render pass
//
// Adjacent untextured submissions coalesce into one draw; each image is
// its own draw bound to the next descriptor ring slot.
//
// # Packages
//
//   - gpucore: the host renderer abstraction (IDs, Device, CommandRecorder)
//   - backend/native: gpucore on gogpu/wgpu hal
//   - atlas, text: glyph atlas and font cache
//   - vertex, descriptor, imagestore, sampler: streaming pools
//
// # Logging
//
// uistream is silent by default. See SetLogger and WithLogger.
package uistream
