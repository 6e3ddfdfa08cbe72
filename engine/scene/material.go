package scene

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

/**
 * @brief The GPU side of a document material: its base colour texture and
 * the descriptor set sampling it.
 */
type Material struct {
	/** @brief Index of the material in the document. */
	Index int
	Name  string
	/** @brief Base colour texture, shared with every material sampling the same image. */
	Texture *vulkan.Image
	Sampler vulkan.SamplerHandle
	/** @brief Set 1 of the scene pipeline layout. */
	Set vulkan.DescriptorSetHandle
}

// SamplerParams converts a document sampler. A nil sampler samples with
// linear filtering and repeat wrapping.
func SamplerParams(s *gltf.Sampler, anisotropy float32) vulkan.SamplerParams {
	p := vulkan.DefaultSamplerParams()
	p.MaxAnisotropy = anisotropy
	if s == nil {
		return p
	}
	if s.MagFilter == gltf.FilterNearest {
		p.MagFilter = vk.FilterNearest
	}
	switch s.MinFilter {
	case gltf.FilterNearest, gltf.FilterNearestMipmapNearest, gltf.FilterNearestMipmapLinear:
		p.MinFilter = vk.FilterNearest
	}
	switch s.MinFilter {
	case gltf.FilterNearestMipmapNearest, gltf.FilterLinearMipmapNearest:
		p.MipmapMode = vk.SamplerMipmapModeNearest
	}
	p.AddressModeU = addressMode(s.WrapS)
	p.AddressModeV = addressMode(s.WrapT)
	return p
}

func addressMode(wrap int) vk.SamplerAddressMode {
	switch wrap {
	case gltf.WrapClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gltf.WrapMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	}
	return vk.SamplerAddressModeRepeat
}

// loadTexture uploads the image behind a texture, once per image, and
// returns it with the sampler the texture asks for.
func (u *upload) loadTexture(index int) (*vulkan.Image, vulkan.SamplerHandle, error) {
	tex, err := u.doc.TextureAt(index)
	if err != nil {
		return nil, 0, err
	}
	if tex.Source == nil {
		return nil, 0, u.malformed("read texture", fmt.Errorf("texture %d source: %w", index, core.ErrMissingField))
	}

	img, ok := u.scene.images[*tex.Source]
	if !ok {
		if img, err = u.loadImage(*tex.Source); err != nil {
			return nil, 0, err
		}
		u.scene.images[*tex.Source] = img
	}

	var sampler *gltf.Sampler
	if tex.Sampler != nil {
		if sampler, err = u.doc.SamplerAt(*tex.Sampler); err != nil {
			return nil, 0, err
		}
	}
	s, err := img.GetSampler(SamplerParams(sampler, u.anisotropy))
	if err != nil {
		return nil, 0, err
	}
	return img, s, nil
}

// loadImage uploads an image decoded by decodeImages.
func (u *upload) loadImage(index int) (*vulkan.Image, error) {
	if err, ok := u.decodeErrs[index]; ok {
		return nil, err
	}
	rgba, ok := u.decoded[index]
	if !ok {
		var err error
		if rgba, err = u.decodeImage(index); err != nil {
			return nil, err
		}
	}
	img, err := u.rm.UploadImage(rgba)
	if err != nil {
		return nil, err
	}
	delete(u.decoded, index)
	return img, nil
}

func (u *upload) material(index int) (*Material, error) {
	m, err := u.doc.MaterialAt(index)
	if err != nil {
		return nil, err
	}
	out := &Material{Index: index, Name: m.Name}
	if m.PBRMetallicRoughness == nil || m.PBRMetallicRoughness.BaseColorTexture == nil {
		return out, nil
	}

	img, sampler, err := u.loadTexture(m.PBRMetallicRoughness.BaseColorTexture.Index)
	if err != nil {
		return nil, err
	}
	view, err := img.GetView()
	if err != nil {
		return nil, err
	}
	set, err := vulkan.NewDescriptorBuilder(u.alloc).
		BindImage(0, vk.DescriptorTypeCombinedImageSampler, view, sampler).
		Build(u.layouts.Texture)
	if err != nil {
		return nil, err
	}
	out.Texture = img
	out.Sampler = sampler
	out.Set = set
	return out, nil
}
