package scoring

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadImage opens and decodes the image at path. A missing file is reported
// as a wrapped fs.ErrNotExist.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("image not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// Resize scales src to the given bounds with bilinear filtering. The result
// is an RGBA image whose origin is (0,0).
func Resize(src image.Image, size image.Point) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// ToTensor converts img to a [3, H, W] tensor with each channel mapped from
// [0,1] to [-1,1]. Alpha is dropped.
func ToTensor(img image.Image) Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = normalize(r)
			data[plane+i] = normalize(g)
			data[2*plane+i] = normalize(bl)
		}
	}
	return Tensor{Shape: []int{3, h, w}, Data: data}
}

// normalize maps a 16-bit color channel to [-1,1].
func normalize(c uint32) float32 {
	return float32(c)/0xffff*2 - 1
}
