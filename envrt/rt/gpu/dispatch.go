package gpu

import (
	"fmt"

	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/gekko3d/envmap/envrt/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
)

// UpdateEnvironmentMap reprojects frame into envMap with one compute dispatch
// over the whole map and waits for the device to finish. A failed dispatch
// leaves the map as it was after the last successful update.
func (c *Context) UpdateEnvironmentMap(frame, lookup, envMap core.Texture, info core.FrameInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	if err := core.CheckUpdateTextures(frame, lookup, envMap, c.geometry); err != nil {
		return err
	}
	f, err := c.own(frame)
	if err != nil {
		return err
	}
	l, err := c.own(lookup)
	if err != nil {
		return err
	}
	m, err := c.own(envMap)
	if err != nil {
		return err
	}
	if m.Snapshot == nil || m.Confidence == nil {
		return fmt.Errorf("%w: environment map %v has no blend state", core.ErrInvalidTexture, m.id)
	}

	info.MapSize = [2]uint32{uint32(c.geometry.MapWidth), uint32(c.geometry.MapHeight)}
	info.FrameSize[0] = float32(f.width)
	info.FrameSize[1] = float32(f.height)

	if err := c.dispatch(f, l, m, info); err != nil {
		c.failures.Add(1)
		c.logger.Errorf("environment map update %d failed: %v", info.FrameIndex, err)
		return fmt.Errorf("%w: %v", core.ErrDispatch, err)
	}
	c.dispatches.Add(1)
	if c.logger.DebugEnabled() {
		c.logger.Debugf("environment map update %d: %dx%d frame, %d workgroups", info.FrameIndex, f.width, f.height, c.geometry.TileCount())
	}
	return nil
}

func (c *Context) dispatch(frame, lookup, envMap *Texture, info core.FrameInfo) error {
	if err := c.Queue.WriteBuffer(c.FrameInfoBuf, 0, info.Bytes()); err != nil {
		return fmt.Errorf("failed to write frame info: %w", err)
	}

	bg, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Environment Map BG",
		Layout: c.BindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: shaders.BindingFrame, TextureView: frame.View},
			{Binding: shaders.BindingLookup, TextureView: lookup.View},
			{Binding: shaders.BindingEnvMap, TextureView: envMap.View},
			{Binding: shaders.BindingFrameInfo, Buffer: c.FrameInfoBuf, Size: wgpu.WholeSize},
			{Binding: shaders.BindingPrevMap, TextureView: envMap.SnapshotView},
			{Binding: shaders.BindingConfidence, Buffer: envMap.Confidence, Size: wgpu.WholeSize},
		},
	})
	if err != nil || bg == nil {
		return fmt.Errorf("failed to create bind group: %v", err)
	}
	defer bg.Release()

	encoder, err := c.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "Environment Map Update"})
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	defer encoder.Release()

	// The kernel reads the previous value of each texel from the snapshot and
	// writes the map, so no invocation reads another one's output.
	extent := wgpu.Extent3D{Width: uint32(envMap.width), Height: uint32(envMap.height), DepthOrArrayLayers: 1}
	if err := encoder.CopyTextureToTexture(envMap.Tex.AsImageCopy(), envMap.Snapshot.AsImageCopy(), &extent); err != nil {
		return fmt.Errorf("failed to snapshot environment map: %w", err)
	}

	x, y, z := c.geometry.Groups()
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(c.Pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(x, y, z)
	err = pass.End()
	pass.Release()
	if err != nil {
		return fmt.Errorf("failed to end compute pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish command buffer: %w", err)
	}
	defer cmd.Release()

	c.Queue.Submit(cmd)
	c.Device.Poll(true, nil)
	return nil
}
