package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bmharper/cimg/v2"
)

const DefaultJPEGQuality = 85

// rgbView exposes a 24-bit RGB cimg.Image as an image.Image, without copying
type rgbView struct {
	img *cimg.Image
}

func (v rgbView) ColorModel() color.Model {
	return color.RGBAModel
}

func (v rgbView) Bounds() image.Rectangle {
	return image.Rect(0, 0, v.img.Width, v.img.Height)
}

func (v rgbView) At(x, y int) color.Color {
	i := y*v.img.Stride + x*3
	p := v.img.Pixels
	return color.RGBA{R: p[i], G: p[i+1], B: p[i+2], A: 255}
}

// Convert any image.Image into a new RGB cimg.Image
func fromImage(src image.Image) *cimg.Image {
	b := src.Bounds()
	dst := cimg.NewImage(b.Dx(), b.Dy(), cimg.PixelFormatRGB)
	if rgba, ok := src.(*image.RGBA); ok {
		for y := 0; y < dst.Height; y++ {
			srcRow := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride+(b.Min.X-rgba.Rect.Min.X)*4:]
			dstRow := dst.Pixels[y*dst.Stride:]
			for x := 0; x < dst.Width; x++ {
				dstRow[x*3] = srcRow[x*4]
				dstRow[x*3+1] = srcRow[x*4+1]
				dstRow[x*3+2] = srcRow[x*4+2]
			}
		}
		return dst
	}
	for y := 0; y < dst.Height; y++ {
		dstRow := dst.Pixels[y*dst.Stride:]
		for x := 0; x < dst.Width; x++ {
			r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			dstRow[x*3] = uint8(r >> 8)
			dstRow[x*3+1] = uint8(g >> 8)
			dstRow[x*3+2] = uint8(bl >> 8)
		}
	}
	return dst
}

// Returns img if it is already RGB, otherwise a converted copy
func ensureRGB(img *cimg.Image) *cimg.Image {
	if img.Format == cimg.PixelFormatRGB {
		return img
	}
	return img.ToRGB()
}

// DecodeJPEG decompresses a JPEG into a 24-bit RGB image
func DecodeJPEG(jpg []byte) (*cimg.Image, error) {
	img, err := cimg.Decompress(jpg)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode JPEG: %w", err)
	}
	return ensureRGB(img), nil
}

// EncodeJPEG compresses an image. quality is 1..100 (0 = DefaultJPEGQuality).
func EncodeJPEG(img *cimg.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}

// Return a deep copy of an RGB image
func cloneRGB(img *cimg.Image) *cimg.Image {
	dst := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		copy(dst.Pixels[y*dst.Stride:y*dst.Stride+img.Width*3], img.Pixels[y*img.Stride:y*img.Stride+img.Width*3])
	}
	return dst
}
