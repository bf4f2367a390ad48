package core

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

type PixelBufferFormat int

const (
	PixelBufferBGRA8 PixelBufferFormat = iota
	PixelBufferRGBA8
	// PixelBufferYCbCr420 is a full-range bi-planar 4:2:0 buffer: plane 0 is
	// luma, plane 1 interleaved Cb/Cr at half resolution (NV12).
	PixelBufferYCbCr420
)

func (f PixelBufferFormat) String() string {
	switch f {
	case PixelBufferBGRA8:
		return "BGRA8"
	case PixelBufferRGBA8:
		return "RGBA8"
	case PixelBufferYCbCr420:
		return "YCbCr420"
	default:
		return fmt.Sprintf("PixelBufferFormat(%d)", int(f))
	}
}

// PixelBuffer is a camera capture buffer as delivered by the capture pipeline.
type PixelBuffer struct {
	Format  PixelBufferFormat
	Width   int
	Height  int
	Planes  [][]byte
	Strides []int
}

// NewRGBAPixelBuffer wraps an RGBA image as a single-plane buffer.
func NewRGBAPixelBuffer(img *image.RGBA) *PixelBuffer {
	b := img.Bounds()
	return &PixelBuffer{
		Format:  PixelBufferRGBA8,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Planes:  [][]byte{img.Pix[img.PixOffset(b.Min.X, b.Min.Y):]},
		Strides: []int{img.Stride},
	}
}

func (p *PixelBuffer) plane(i, rowBytes, rows int) ([]byte, int, error) {
	if len(p.Planes) <= i || len(p.Strides) <= i {
		return nil, 0, fmt.Errorf("%w: %s buffer is missing plane %d", ErrConversion, p.Format, i)
	}
	stride := p.Strides[i]
	if stride < rowBytes {
		return nil, 0, fmt.Errorf("%w: plane %d stride %d is shorter than a row (%d bytes)", ErrConversion, i, stride, rowBytes)
	}
	if rows > 0 && len(p.Planes[i]) < stride*(rows-1)+rowBytes {
		return nil, 0, fmt.Errorf("%w: plane %d holds %d bytes, need %d", ErrConversion, i, len(p.Planes[i]), stride*(rows-1)+rowBytes)
	}
	return p.Planes[i], stride, nil
}

// Image decodes the buffer into an image.Image without color conversion.
func (p *PixelBuffer) Image() (image.Image, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pixel buffer", ErrConversion)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %dx%d pixel buffer", ErrConversion, p.Width, p.Height)
	}
	rect := image.Rect(0, 0, p.Width, p.Height)

	switch p.Format {
	case PixelBufferRGBA8:
		pix, stride, err := p.plane(0, p.Width*4, p.Height)
		if err != nil {
			return nil, err
		}
		return &image.RGBA{Pix: pix, Stride: stride, Rect: rect}, nil

	case PixelBufferBGRA8:
		pix, stride, err := p.plane(0, p.Width*4, p.Height)
		if err != nil {
			return nil, err
		}
		rgba := image.NewRGBA(rect)
		for y := 0; y < p.Height; y++ {
			src := pix[y*stride : y*stride+p.Width*4]
			dst := rgba.Pix[y*rgba.Stride : y*rgba.Stride+p.Width*4]
			for x := 0; x < len(src); x += 4 {
				dst[x+0] = src[x+2]
				dst[x+1] = src[x+1]
				dst[x+2] = src[x+0]
				dst[x+3] = src[x+3]
			}
		}
		return rgba, nil

	case PixelBufferYCbCr420:
		cw, ch := (p.Width+1)/2, (p.Height+1)/2
		luma, lumaStride, err := p.plane(0, p.Width, p.Height)
		if err != nil {
			return nil, err
		}
		chroma, chromaStride, err := p.plane(1, cw*2, ch)
		if err != nil {
			return nil, err
		}
		ycc := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
		for y := 0; y < p.Height; y++ {
			copy(ycc.Y[y*ycc.YStride:y*ycc.YStride+p.Width], luma[y*lumaStride:])
		}
		for y := 0; y < ch; y++ {
			row := chroma[y*chromaStride:]
			for x := 0; x < cw; x++ {
				ycc.Cb[y*ycc.CStride+x] = row[2*x]
				ycc.Cr[y*ycc.CStride+x] = row[2*x+1]
			}
		}
		return ycc, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, p.Format)
	}
}

// ToRGBA converts the buffer to RGBA. When maxWidth is positive and smaller
// than the buffer width the result is down-scaled, preserving aspect ratio.
func (p *PixelBuffer) ToRGBA(maxWidth int) (*image.RGBA, error) {
	img, err := p.Image()
	if err != nil {
		return nil, err
	}
	return ImageToRGBA(img, maxWidth), nil
}

// ImageToRGBA converts any image to a tightly packed RGBA image at the origin,
// optionally down-scaled to maxWidth.
func ImageToRGBA(img image.Image, maxWidth int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = max(1, h*maxWidth/w)
		w = maxWidth
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		return dst
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == w*4 {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
