package printer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	//MaxWidth dots per line of the 58mm mechanism
	MaxWidth = 384
	//MaxPixels largest source image accepted, checked from the header before decoding
	MaxPixels = 4096 * 4096
)

//DecodeError the payload could not be turned into an image
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

//DecodeBase64 decode a base64 encoded png/jpeg/gif/bmp/webp
func DecodeBase64(data []byte) (image.Image, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, bytes.TrimSpace(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return Decode(raw[:n])
}

//Decode decode raw image bytes
func Decode(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}
	if cfg.Width > MaxPixels/cfg.Height {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}
	return img, nil
}

//Load read an image from disk, used for the bundled graphics
func Load(path string) (image.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

//Fit scale the image down so it is at most width dots wide
func Fit(img image.Image, width int) image.Image {
	b := img.Bounds()
	if b.Dx() <= width {
		return img
	}
	h := b.Dy() * width / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

var monochrome = color.Palette{color.White, color.Black}

//Bitmap dither the image to 1 bit and pack it, MSB first, 1 = burn
func Bitmap(img image.Image) (rowBytes int, rows [][]byte) {
	b := img.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())
	// transparent areas print as paper
	paper := image.NewRGBA(rect)
	xdraw.Draw(paper, rect, image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(paper, rect, img, b.Min, xdraw.Over)

	flat := image.NewPaletted(rect, monochrome)
	xdraw.FloydSteinberg.Draw(flat, rect, paper, image.Point{})

	rowBytes = (b.Dx() + 7) / 8
	rows = make([][]byte, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := make([]byte, rowBytes)
		for x := 0; x < b.Dx(); x++ {
			if flat.ColorIndexAt(x, y) == 1 {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
		rows[y] = row
	}
	return rowBytes, rows
}
