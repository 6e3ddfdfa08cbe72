package loaders

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	"github.com/go-git/go-billy/v5"
	"github.com/h2non/filetype"
	"github.com/spaghettifunk/prism/engine/core"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Filter selects how mip levels are downsampled on the CPU.
type Filter string

const (
	FilterLinear  Filter = "linear"
	FilterNearest Filter = "nearest"
)

// ParseFilter maps a configuration value onto a Filter. The empty string
// selects FilterLinear.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterLinear:
		return FilterLinear, nil
	case FilterNearest:
		return FilterNearest, nil
	}
	return "", fmt.Errorf("unknown mip filter %q", s)
}

var supportedImages = map[string]bool{
	"png":  true,
	"jpg":  true,
	"bmp":  true,
	"tif":  true,
	"webp": true,
}

// LoadImage reads and decodes the image at path.
func LoadImage(fs billy.Filesystem, path string) (*image.RGBA, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, ioFailure("open image", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, ioFailure("read image", path, err)
	}
	return DecodeImage(data, path)
}

// DecodeImage sniffs the format of data and decodes it into RGBA. name is
// only used in errors.
func DecodeImage(data []byte, name string) (*image.RGBA, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, malformed("detect image type", name, err)
	}
	if !supportedImages[kind.Extension] {
		return nil, malformed("detect image type", name, fmt.Errorf("unsupported image type %q", kind.Extension))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("decode image", name, err)
	}
	rgba := clone.AsRGBA(img)
	core.LogDebug("decoded %s image %s (%dx%d)", kind.Extension, name, rgba.Bounds().Dx(), rgba.Bounds().Dy())
	return rgba, nil
}

// MipChain returns levels images, level 0 being src and every following
// level half the size of the previous one, never below 1x1.
func MipChain(src *image.RGBA, levels uint32, filter Filter) []*image.RGBA {
	chain := make([]*image.RGBA, 0, levels)
	chain = append(chain, src)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for i := uint32(1); i < levels; i++ {
		w, h = max(w/2, 1), max(h/2, 1)
		chain = append(chain, resize(chain[i-1], w, h, filter))
	}
	return chain
}

func resize(src *image.RGBA, w, h int, filter Filter) *image.RGBA {
	if filter == FilterNearest {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return dst
	}
	return transform.Resize(src, w, h, transform.Linear)
}

// Pixels returns the pixels of img as tightly packed RGBA rows.
func Pixels(img *image.RGBA) []byte {
	b := img.Bounds()
	rowSize := b.Dx() * 4
	if img.Stride == rowSize {
		start := img.PixOffset(b.Min.X, b.Min.Y)
		return img.Pix[start : start+rowSize*b.Dy()]
	}
	out := make([]byte, 0, rowSize*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[start:start+rowSize]...)
	}
	return out
}

func malformed(op, path string, err error) error {
	e := core.NewMalformedError(op, path, err)
	core.LogError("%s", e)
	return e
}

func ioFailure(op, path string, err error) error {
	e := core.NewIOError(op, path, err)
	core.LogError("%s", e)
	return e
}
