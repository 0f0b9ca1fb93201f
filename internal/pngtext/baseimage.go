package pngtext

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var defaultImageOnce struct {
	sync.Once
	data []byte
}

// DefaultBaseImage returns a built-in 512x512 card background used when a
// submission carries no base image, so every completed job can ship an
// embeddable PNG.
func DefaultBaseImage() []byte {
	defaultImageOnce.Do(func() {
		const size = 512
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			// Vertical dusk gradient.
			t := float64(y) / float64(size-1)
			c := color.RGBA{
				R: uint8(38 + t*28),
				G: uint8(34 + t*20),
				B: uint8(64 + t*52),
				A: 255,
			}
			for x := 0; x < size; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// Encoding an in-memory RGBA image cannot fail short of OOM.
			panic(err)
		}
		defaultImageOnce.data = buf.Bytes()
	})
	return defaultImageOnce.data
}
