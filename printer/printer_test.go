package printer

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	bytes.Buffer
	fail   error
	closed bool
}

func (l *line) Write(p []byte) (int, error) {
	if l.fail != nil {
		return 0, l.fail
	}
	return l.Buffer.Write(p)
}

func (l *line) Close() error {
	l.closed = true
	return nil
}

func newTestThermal(l *line) *Thermal {
	t := NewThermal(l, DefaultConfig())
	t.sleep = func(time.Duration) {}
	return t
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBitmapPacking(t *testing.T) {
	img := solid(10, 2, color.White)
	img.Set(0, 0, color.Black)
	img.Set(9, 1, color.Black)

	rowBytes, rows := Bitmap(img)
	assert.Equal(t, 2, rowBytes)
	require.Len(t, rows, 2)
	assert.Equal(t, []byte{0x80, 0x00}, rows[0])
	assert.Equal(t, []byte{0x00, 0x40}, rows[1])
}

func TestBitmapTransparentIsPaper(t *testing.T) {
	_, rows := Bitmap(image.NewRGBA(image.Rect(0, 0, 8, 1)))
	assert.Equal(t, []byte{0x00}, rows[0])
}

func TestFit(t *testing.T) {
	small := solid(100, 50, color.Black)
	assert.Same(t, small, Fit(small, MaxWidth))

	wide := Fit(solid(768, 200, color.Black), MaxWidth)
	assert.Equal(t, MaxWidth, wide.Bounds().Dx())
	assert.Equal(t, 100, wide.Bounds().Dy())
}

func TestDecodeBase64(t *testing.T) {
	raw := encodePNG(t, solid(4, 4, color.Black))
	img, err := DecodeBase64([]byte(base64.StdEncoding.EncodeToString(raw) + "\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	var decodeErr *DecodeError
	_, err = DecodeBase64([]byte("!!not base64!!"))
	assert.True(t, errors.As(err, &decodeErr))

	_, err = DecodeBase64([]byte(base64.StdEncoding.EncodeToString([]byte("plain text"))))
	assert.True(t, errors.As(err, &decodeErr))

	_, err = Decode(nil)
	assert.True(t, errors.Is(err, ErrEmptyImage))
}

//hugePNG a valid PNG whose header claims width x height, with no pixel data
func hugePNG(t *testing.T, width, height uint32) []byte {
	raw := encodePNG(t, solid(1, 1, color.Black))
	binary.BigEndian.PutUint32(raw[16:20], width)
	binary.BigEndian.PutUint32(raw[20:24], height)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))
	return raw
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	_, err := Decode(hugePNG(t, 30000, 30000))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.True(t, errors.Is(err, ErrImageTooLarge))

	_, err = DecodeBase64([]byte(base64.StdEncoding.EncodeToString(hugePNG(t, 1, MaxPixels+1))))
	assert.True(t, errors.Is(err, ErrImageTooLarge))

	_, err = Decode(hugePNG(t, 0, 10))
	assert.True(t, errors.As(err, &decodeErr))
}

func TestThermalReset(t *testing.T) {
	l := &line{}
	require.NoError(t, newTestThermal(l).Reset())
	assert.Equal(t, []byte{esc, '@', esc, '7', 11, 120, 40}, l.Bytes())
}

func TestThermalPrintImageChunks(t *testing.T) {
	l := &line{}
	th := newTestThermal(l)
	require.NoError(t, th.PrintImage(solid(MaxWidth, 12, color.Black)))

	out := l.Bytes()
	// 48 bytes per row, 5 rows fit the buffer: chunks of 5, 5, 2
	assert.Equal(t, []byte{dc2, '*', 5, 48}, out[:4])
	assert.Equal(t, byte(0xff), out[4])
	second := 4 + 5*48
	assert.Equal(t, []byte{dc2, '*', 5, 48}, out[second:second+4])
	third := second + 4 + 5*48
	assert.Equal(t, []byte{dc2, '*', 2, 48}, out[third:third+4])
	assert.Len(t, out, 3*4+12*48)
}

func TestThermalTextAndFeed(t *testing.T) {
	l := &line{}
	th := newTestThermal(l)
	require.NoError(t, th.SetBold(true))
	require.NoError(t, th.PrintText("hello"))
	require.NoError(t, th.Feed(300))

	want := []byte{esc, 'E', 1}
	want = append(want, "hello\n"...)
	want = append(want, esc, 'd', 255, esc, 'd', 45)
	assert.Equal(t, want, l.Bytes())
}

func TestThermalErrors(t *testing.T) {
	l := &line{fail: errors.New("cable unplugged")}
	th := newTestThermal(l)

	err := th.PrintText("x")
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "print text", devErr.Op)

	assert.Error(t, th.PrintImage(nil))

	l.fail = nil
	require.NoError(t, th.Close())
	assert.True(t, l.closed)
	assert.True(t, errors.Is(th.Feed(1), ErrClosed))
}

func TestDummy(t *testing.T) {
	log := logrus.New()
	log.Out = io.Discard
	d := NewDummy(logrus.NewEntry(log), 0)

	require.NoError(t, d.PrintImage(solid(2, 2, color.Black)))
	require.NoError(t, d.PrintText("hi"))
	require.NoError(t, d.Feed(3))
	assert.Error(t, d.PrintImage(nil))

	images, lines, fed := d.Printed()
	assert.Equal(t, 1, images)
	assert.Equal(t, []string{"hi"}, lines)
	assert.Equal(t, 3, fed)
}
