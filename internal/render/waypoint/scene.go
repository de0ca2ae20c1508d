package waypoint

import (
	"sort"
	"sync"

	"github.com/wayfinder/wayfinder/internal/render"
)

// Node is the visual object the renderer keeps in the scene for a waypoint.
type Node struct {
	ID       string          `json:"id"`
	Type     Type            `json:"type"`
	Position Vec3            `json:"position"`
	Scale    float64         `json:"scale"`
	Rotation float64         `json:"rotation"`
	Glow     float64         `json:"glow"`
	Opacity  float64         `json:"opacity"`
	Color    string          `json:"color"`
	Emissive string          `json:"emissive"`
	Geometry render.Resource `json:"-"`
	Material render.Resource `json:"-"`
	Texture  render.Resource `json:"-"`
}

// Scene is the rendering host the renderer attaches nodes to.
type Scene interface {
	Attach(n Node)
	Update(n Node)
	Detach(id string)
	ViewerPosition() Vec3
}

// HeadlessScene is an in-memory Scene. It backs the API sessions and the
// simulator, where no real rendering surface exists.
type HeadlessScene struct {
	mu      sync.RWMutex
	nodes   map[string]Node
	viewer  Vec3
	updates int
}

// NewHeadlessScene creates an empty scene with the viewer at the origin.
func NewHeadlessScene() *HeadlessScene {
	return &HeadlessScene{nodes: make(map[string]Node)}
}

// Attach implements Scene.
func (s *HeadlessScene) Attach(n Node) {
	s.mu.Lock()
	s.nodes[n.ID] = n
	s.mu.Unlock()
}

// Update implements Scene.
func (s *HeadlessScene) Update(n Node) {
	s.mu.Lock()
	if _, ok := s.nodes[n.ID]; ok {
		s.nodes[n.ID] = n
		s.updates++
	}
	s.mu.Unlock()
}

// Detach implements Scene.
func (s *HeadlessScene) Detach(id string) {
	s.mu.Lock()
	delete(s.nodes, id)
	s.mu.Unlock()
}

// ViewerPosition implements Scene.
func (s *HeadlessScene) ViewerPosition() Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// SetViewerPosition moves the camera.
func (s *HeadlessScene) SetViewerPosition(v Vec3) {
	s.mu.Lock()
	s.viewer = v
	s.mu.Unlock()
}

// Node returns the attached node with id.
func (s *HeadlessScene) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns the attached nodes ordered by id.
func (s *HeadlessScene) Nodes() []Node {
	s.mu.RLock()
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of attached nodes.
func (s *HeadlessScene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Updates returns how many node updates the scene has applied.
func (s *HeadlessScene) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

var _ Scene = (*HeadlessScene)(nil)
