package gpu

import (
	"fmt"
	"image"

	"github.com/gekko3d/envmap/envrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

// copyRowAlignment is the bytes-per-row alignment of texture to buffer copies.
const copyRowAlignment = 256

// ImageFromTexture reads an RGBA8 texture back into host memory. Other
// formats fail with core.ErrUnsupportedFormat.
func (c *Context) ImageFromTexture(t core.Texture) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil texture", core.ErrInvalidTexture)
	}
	if t.Format() != core.PixelFormatRGBA8Unorm {
		return nil, fmt.Errorf("%w: read-back of %s texture", core.ErrUnsupportedFormat, t.Format())
	}
	gt, err := c.own(t)
	if err != nil {
		return nil, err
	}

	w, h := uint32(gt.width), uint32(gt.height)
	bytesPerRow := (w*4 + copyRowAlignment - 1) & ^uint32(copyRowAlignment-1)
	size := uint64(bytesPerRow * h)

	staging, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Texture Readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := c.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "Texture Readback"})
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	defer encoder.Release()

	err = encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  gt.Tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: 0},
		},
		&wgpu.ImageCopyBuffer{
			Buffer: staging,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: h,
			},
		},
		&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to copy texture to buffer: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish readback commands: %w", err)
	}
	defer cmd.Release()
	c.Queue.Submit(cmd)

	var status wgpu.BufferMapAsyncStatus
	mapped := false
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		mapped = true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map readback buffer: %w", err)
	}
	c.Device.Poll(true, nil)
	if !mapped {
		return nil, fmt.Errorf("readback buffer was not mapped after device poll")
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map readback buffer: status %v", status)
	}
	defer staging.Unmap()

	data := staging.GetMappedRange(0, uint(size))
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := uint32(0); y < h; y++ {
		copy(img.Pix[int(y)*img.Stride:int(y)*img.Stride+int(w*4)], data[y*bytesPerRow:y*bytesPerRow+w*4])
	}
	return img, nil
}
