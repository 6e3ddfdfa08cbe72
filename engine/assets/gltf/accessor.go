package gltf

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/core"
)

// ComponentSize returns the byte size of one component, or 0 when the
// component type is unknown.
func ComponentSize(t ComponentType) int {
	switch t {
	case ComponentByte, ComponentUnsignedByte:
		return 1
	case ComponentShort, ComponentUnsignedShort:
		return 2
	case ComponentUnsignedInt, ComponentFloat:
		return 4
	}
	return 0
}

// ComponentsPerType returns the number of components of an accessor type,
// or 0 when the type is unknown.
func ComponentsPerType(t AccessorType) int {
	switch t {
	case AccessorScalar:
		return 1
	case AccessorVec2:
		return 2
	case AccessorVec3:
		return 3
	case AccessorVec4, AccessorMat2:
		return 4
	case AccessorMat3:
		return 9
	case AccessorMat4:
		return 16
	}
	return 0
}

// AccessorData is the tightly packed content of one accessor.
type AccessorData struct {
	Data          []byte
	Count         int
	ElementSize   int
	ComponentType ComponentType
	Type          AccessorType
}

// Size is Count * ElementSize.
func (a *AccessorData) Size() int {
	return a.Count * a.ElementSize
}

// AccessorReader decodes accessor contents out of the binary files that sit
// next to the document. Each buffer is read once and kept for the lifetime
// of the reader. It is not safe for concurrent use.
type AccessorReader struct {
	fs      billy.Filesystem
	doc     *Document
	buffers map[int][]byte
}

func NewAccessorReader(fs billy.Filesystem, doc *Document) *AccessorReader {
	return &AccessorReader{fs: fs, doc: doc, buffers: make(map[int][]byte)}
}

func (r *AccessorReader) Document() *Document {
	return r.doc
}

// Read resolves accessor -> bufferView -> buffer and reads
// count * elementSize bytes starting at accessor.byteOffset + bufferView.byteOffset.
// The bytes read must lie inside the bufferView.
func (r *AccessorReader) Read(index int) (*AccessorData, error) {
	accessor, err := r.doc.AccessorAt(index)
	if err != nil {
		return nil, err
	}
	if accessor.BufferView == nil {
		return nil, malformed("read accessor", r.doc.Path,
			fmt.Errorf("accessor %d: %w", index, core.ErrMissingBufferView))
	}
	if accessor.Count < 0 {
		return nil, malformed("read accessor", r.doc.Path,
			fmt.Errorf("accessor %d: count %d: %w", index, accessor.Count, core.ErrBadArity))
	}

	componentSize := ComponentSize(accessor.ComponentType)
	if componentSize == 0 {
		return nil, malformed("read accessor", r.doc.Path,
			fmt.Errorf("accessor %d: %w %d", index, core.ErrUnknownComponentType, accessor.ComponentType))
	}
	components := ComponentsPerType(accessor.Type)
	if components == 0 {
		return nil, malformed("read accessor", r.doc.Path,
			fmt.Errorf("accessor %d: %w %q", index, core.ErrUnknownAccessorType, accessor.Type))
	}

	view, err := r.doc.BufferViewAt(*accessor.BufferView)
	if err != nil {
		return nil, err
	}
	buffer, err := r.doc.BufferAt(view.Buffer)
	if err != nil {
		return nil, err
	}
	if buffer.URI == "" {
		return nil, malformed("read accessor", r.doc.Path,
			fmt.Errorf("buffer %d: %w", view.Buffer, core.ErrMissingURI))
	}

	out := &AccessorData{
		Count:         accessor.Count,
		ElementSize:   componentSize * components,
		ComponentType: accessor.ComponentType,
		Type:          accessor.Type,
	}

	stride := out.ElementSize
	if view.ByteStride > out.ElementSize {
		stride = view.ByteStride
	}
	span := 0
	if out.Count > 0 {
		span = (out.Count-1)*stride + out.ElementSize
	}
	if accessor.ByteOffset < 0 || view.ByteOffset < 0 || view.ByteLength < 0 ||
		accessor.ByteOffset+span > view.ByteLength {
		return nil, malformed("read accessor", r.doc.Path,
			fmt.Errorf("accessor %d: %d bytes at %d of a %d byte view: %w",
				index, span, accessor.ByteOffset, view.ByteLength, core.ErrRangeOutOfBounds))
	}

	payload, err := r.buffer(view.Buffer, buffer.URI)
	if err != nil {
		return nil, err
	}
	offset := accessor.ByteOffset + view.ByteOffset
	if offset+span > len(payload) {
		return nil, ioFailure("read buffer", r.doc.ResolveURI(buffer.URI),
			fmt.Errorf("%d bytes at %d of %d: %w", span, offset, len(payload), io.ErrUnexpectedEOF))
	}
	raw := payload[offset : offset+span]

	if stride == out.ElementSize {
		out.Data = bytes.Clone(raw)
		return out, nil
	}
	out.Data = make([]byte, out.Size())
	for i := 0; i < out.Count; i++ {
		copy(out.Data[i*out.ElementSize:(i+1)*out.ElementSize], raw[i*stride:i*stride+out.ElementSize])
	}
	return out, nil
}

func (r *AccessorReader) buffer(index int, uri string) ([]byte, error) {
	if payload, ok := r.buffers[index]; ok {
		return payload, nil
	}

	var payload []byte
	if IsDataURI(uri) {
		decoded, err := DecodeDataURI(uri)
		if err != nil {
			return nil, malformed("decode data uri", r.doc.Path, err)
		}
		payload = decoded
	} else {
		path := r.doc.ResolveURI(uri)
		data, err := util.ReadFile(r.fs, path)
		if err != nil {
			return nil, ioFailure("read buffer", path, err)
		}
		payload = data
	}
	r.buffers[index] = payload
	return payload, nil
}

// IsDataURI reports whether uri embeds its payload.
func IsDataURI(uri string) bool {
	return strings.HasPrefix(uri, "data:")
}

// DecodeDataURI returns the payload of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if !IsDataURI(uri) || comma < 0 || !strings.HasSuffix(uri[:comma], ";base64") {
		return nil, fmt.Errorf("only base64 data uris are supported")
	}
	return base64.StdEncoding.DecodeString(uri[comma+1:])
}

// Indices decodes an index accessor of 1, 2 or 4 byte unsigned integers.
func (r *AccessorReader) Indices(index int) ([]uint32, error) {
	data, err := r.Read(index)
	if err != nil {
		return nil, err
	}
	if data.Type != AccessorScalar {
		return nil, malformed("read indices", r.doc.Path,
			fmt.Errorf("accessor %d is %s, want SCALAR: %w", index, data.Type, core.ErrUnknownAccessorType))
	}

	out := make([]uint32, data.Count)
	switch data.ComponentType {
	case ComponentUnsignedByte:
		for i := range out {
			out[i] = uint32(data.Data[i])
		}
	case ComponentUnsignedShort:
		for i := range out {
			out[i] = uint32(binary.LittleEndian.Uint16(data.Data[i*2:]))
		}
	case ComponentUnsignedInt:
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data.Data[i*4:])
		}
	default:
		return nil, malformed("read indices", r.doc.Path,
			fmt.Errorf("accessor %d: %w %d for indices", index, core.ErrUnknownComponentType, data.ComponentType))
	}
	return out, nil
}

// Vec3 decodes a VEC3 FLOAT accessor.
func (r *AccessorReader) Vec3(index int) ([]mgl32.Vec3, error) {
	floats, err := r.floats(index, AccessorVec3)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec3, len(floats)/3)
	for i := range out {
		out[i] = mgl32.Vec3{floats[i*3], floats[i*3+1], floats[i*3+2]}
	}
	return out, nil
}

// Vec2 decodes a VEC2 FLOAT accessor.
func (r *AccessorReader) Vec2(index int) ([]mgl32.Vec2, error) {
	floats, err := r.floats(index, AccessorVec2)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec2, len(floats)/2)
	for i := range out {
		out[i] = mgl32.Vec2{floats[i*2], floats[i*2+1]}
	}
	return out, nil
}

func (r *AccessorReader) floats(index int, want AccessorType) ([]float32, error) {
	data, err := r.Read(index)
	if err != nil {
		return nil, err
	}
	if data.Type != want || data.ComponentType != ComponentFloat {
		return nil, malformed("read accessor", r.doc.Path,
			fmt.Errorf("accessor %d is %s/%d, want %s/FLOAT: %w", index, data.Type, data.ComponentType, want, core.ErrUnknownAccessorType))
	}
	out := make([]float32, len(data.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data.Data[i*4:]))
	}
	return out, nil
}
