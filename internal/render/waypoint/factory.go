package waypoint

import (
	"sync/atomic"

	"github.com/wayfinder/wayfinder/internal/render"
)

// ResourceFactory builds the resources a waypoint node is made of.
type ResourceFactory interface {
	Geometry(t Type, q render.QualitySettings) (render.Resource, error)
	Material(style Style, q render.QualitySettings) (render.Resource, error)
	Texture(label string, q render.QualitySettings) (render.Resource, error)
}

type disposable struct {
	disposed atomic.Bool
}

func (d *disposable) Dispose() { d.disposed.Store(true) }

// Disposed reports whether the resource was disposed.
func (d *disposable) Disposed() bool { return d.disposed.Load() }

// Mesh is a marker geometry: a ring of Segments around a central pin.
type Mesh struct {
	disposable
	Type     Type
	Segments int
}

// Kind implements render.Resource.
func (*Mesh) Kind() render.Kind { return render.KindGeometry }

// Vertices returns the vertex count of the mesh.
func (m *Mesh) Vertices() int { return m.Segments*2 + 2 }

// Material is a marker surface description.
type Material struct {
	disposable
	Color       string
	Emissive    string
	Opacity     float64
	Transparent bool
	Lit         bool
}

// Kind implements render.Resource.
func (*Material) Kind() render.Kind { return render.KindMaterial }

// Texture is a rasterized label.
type Texture struct {
	disposable
	Label string
	Size  int
}

// Kind implements render.Resource.
func (*Texture) Kind() render.Kind { return render.KindTexture }

// MeshFactory builds in-process resources whose detail follows the quality
// tiers.
type MeshFactory struct {
	created atomic.Int64
}

// NewMeshFactory creates a factory.
func NewMeshFactory() *MeshFactory {
	return &MeshFactory{}
}

// Created returns how many resources the factory has built.
func (f *MeshFactory) Created() int {
	return int(f.created.Load())
}

// Geometry implements ResourceFactory.
func (f *MeshFactory) Geometry(t Type, q render.QualitySettings) (render.Resource, error) {
	f.created.Add(1)
	return &Mesh{Type: t, Segments: tierSize(q.ModelQuality, 8, 16, 32)}, nil
}

// Material implements ResourceFactory.
func (f *MeshFactory) Material(style Style, q render.QualitySettings) (render.Resource, error) {
	f.created.Add(1)
	return &Material{
		Color:       style.Color,
		Emissive:    style.Emissive,
		Opacity:     style.Opacity,
		Transparent: style.Opacity < 1,
		Lit:         q.LightingQuality != render.TierLow,
	}, nil
}

// Texture implements ResourceFactory.
func (f *MeshFactory) Texture(label string, q render.QualitySettings) (render.Resource, error) {
	f.created.Add(1)
	return &Texture{Label: label, Size: tierSize(q.TextureQuality, 128, 256, 512)}, nil
}

func tierSize(t render.Tier, low, medium, high int) int {
	switch t {
	case render.TierLow:
		return low
	case render.TierHigh:
		return high
	default:
		return medium
	}
}

var _ ResourceFactory = (*MeshFactory)(nil)
