package scene

import (
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/systems"
)

// textureSources lists the images sampled by the base colour textures of
// materials, each once. References that do not resolve are skipped here and
// reported when the material itself is uploaded.
func (u *upload) textureSources(materials []int) []int {
	var out []int
	for _, index := range materials {
		m, err := u.doc.MaterialAt(index)
		if err != nil || m.PBRMetallicRoughness == nil || m.PBRMetallicRoughness.BaseColorTexture == nil {
			continue
		}
		tex, err := u.doc.TextureAt(m.PBRMetallicRoughness.BaseColorTexture.Index)
		if err != nil || tex.Source == nil || slices.Contains(out, *tex.Source) {
			continue
		}
		out = append(out, *tex.Source)
	}
	return out
}

// decodeImages reads and decodes the given images on the job system. The
// device is not touched: uploads happen afterwards, in material order, and
// report the decode errors stored here.
func (u *upload) decodeImages(sources []int) error {
	if len(sources) == 0 {
		return nil
	}
	js, err := systems.NewJobSystem(min(u.workers, len(sources)), len(sources))
	if err != nil {
		return err
	}

	var mutex sync.Mutex
	for _, index := range sources {
		js.Submit(systems.JobTask{
			Name: fmt.Sprintf("decode image %d", index),
			Run: func() error {
				rgba, err := u.decodeImage(index)
				mutex.Lock()
				defer mutex.Unlock()
				if err != nil {
					u.decodeErrs[index] = err
					return err
				}
				u.decoded[index] = rgba
				return nil
			},
		})
	}
	js.Shutdown()
	return nil
}

func (u *upload) decodeImage(index int) (*image.RGBA, error) {
	src, err := u.doc.ImageAt(index)
	if err != nil {
		return nil, err
	}
	switch {
	case src.URI == "":
		return nil, u.malformed("read image", fmt.Errorf("image %d: %w", index, core.ErrMissingURI))
	case gltf.IsDataURI(src.URI):
		data, err := gltf.DecodeDataURI(src.URI)
		if err != nil {
			return nil, u.malformed("decode image data uri", fmt.Errorf("image %d: %w", index, err))
		}
		return loaders.DecodeImage(data, fmt.Sprintf("%s#image%d", u.doc.Path, index))
	}
	return loaders.LoadImage(u.rm.Filesystem(), u.doc.ResolveURI(src.URI))
}
