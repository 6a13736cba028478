package tile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"

	// extra input formats accepted by the loader
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is the fixed quality of every JPEG written
const JPEGQuality = 90

// DecodeError reports bytes that are not a supported raster image
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Open reads and decodes the image at path in upright orientation.
// Read failures are returned as-is, decode failures as *DecodeError.
func Open(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	var derr *DecodeError
	if errors.As(err, &derr) {
		derr.Path = path
	}
	return img, err
}

// Decode decodes an image and applies its EXIF orientation. Missing or
// unreadable EXIF data leaves the pixels as stored.
func Decode(data []byte) (*image.NRGBA, error) {
	return decode(data, imaging.AutoOrientation(true))
}

// DecodeStored decodes an image as stored, ignoring EXIF orientation
func DecodeStored(data []byte) (*image.NRGBA, error) {
	return decode(data)
}

func decode(data []byte, opts ...imaging.DecodeOption) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data), opts...)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return toNRGBA(img), nil
}

// toNRGBA returns img as a zero-origin NRGBA buffer, copying only when needed
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// Encode writes img with the fast encoder for f
func Encode(w io.Writer, img *image.NRGBA, f Format) error {
	if f == FormatJPEG {
		return imaging.Encode(w, FlattenWhite(img), imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	}
	return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed))
}

// EncodeBytes encodes img into memory
func EncodeBytes(img *image.NRGBA, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save encodes img to path
func Save(path string, img *image.NRGBA, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := Encode(w, img, f); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// FlattenWhite composites img onto an opaque white background
func FlattenWhite(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()*4]
		for i := 0; i < len(src); i += 4 {
			a := uint32(src[i+3])
			inv := 255 - a
			dst[i] = uint8((uint32(src[i])*a + 255*inv + 127) / 255)
			dst[i+1] = uint8((uint32(src[i+1])*a + 255*inv + 127) / 255)
			dst[i+2] = uint8((uint32(src[i+2])*a + 255*inv + 127) / 255)
			dst[i+3] = 255
		}
	}
	return out
}
