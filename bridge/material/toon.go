// Package material translates host shading nodes into engine shader
// descriptions. The toon material is the involved one: its banding ramp has
// host-side defaults that must survive missing attributes, and its light
// linking resolves a light by name at description time, degrading to
// unlinked shading when the light no longer exists.
package material

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
)

const (
	attrShowAdvanced     = "showAdvanced"
	attrHighlightColor   = "highlightColor"
	attrHighlightColor2  = "highlightColor2"
	attrMidColor         = "midColor"
	attrShadowColor      = "shadowColor"
	attrShadowColor2     = "shadowColor2"
	attrHighlightPos     = "highlightPosition"
	attrHighlightPos2    = "highlightPosition2"
	attrMidPos           = "midPosition"
	attrShadowPos        = "shadowPosition"
	attrHighlightRange   = "highlightRange"
	attrHighlightRange2  = "highlightRange2"
	attrMidRange         = "midRange"
	attrShadowRange      = "shadowRange"
	attrTransparency     = "transparencyLevel"
	attrEnableLightLink  = "enableLightLinking"
	attrLinkedLight      = "linkedLight"
)

// Ramp boundary defaults, from shadow to highlight.
const (
	defaultShadowPos     = float32(0.2)
	defaultMidPos        = float32(0.5)
	defaultHighlightPos2 = float32(0.8)
	defaultHighlightPos  = float32(0.9)
	defaultRampRange     = float32(0.1)
)

var (
	defaultHighlightColor = [3]float32{0.8, 0.8, 0.8}
	defaultMidColor       = [3]float32{0.4, 0.4, 0.4}
	defaultShadowColor    = [3]float32{0, 0, 0}
)

// ToonShader is the engine-side description of a toon material.
type ToonShader struct {
	// FiveLevel selects the advanced five-band ramp over the simple
	// three-band one.
	FiveLevel bool

	HighlightColor  [3]float32
	HighlightColor2 [3]float32
	MidColor        [3]float32
	ShadowColor     [3]float32
	ShadowColor2    [3]float32

	// Band boundaries on the shading term, ascending.
	ShadowPosition     float32
	MidPosition        float32
	HighlightPosition2 float32
	HighlightPosition  float32

	// Interpolation width around each boundary.
	ShadowRange     float32
	MidRange        float32
	HighlightRange2 float32
	HighlightRange  float32

	Transparency float32

	// LightLinking is true when the material shades from one linked light
	// only. LinkedLight is that light's node; when the named light cannot
	// be resolved LightLinking is false and LinkedLight nil.
	LightLinking bool
	LinkedLight  host.Node
}

// ToonMaterial reads one host toon shading node and produces engine shader
// descriptions from it. It watches the graph for light lifecycle changes
// that can invalidate the linked light.
type ToonMaterial struct {
	node  host.Node
	graph host.Graph

	dirty atomic.Bool
	subs  []host.Subscription
}

// NewToonMaterial creates a toon material bound to a host shading node. The
// material subscribes to graph lifecycle events for lights and reports them
// through IsDirty until the next Describe.
//
// Parameters:
//   - node: the host shading node
//   - graph: the host dependency graph, used for light resolution
//
// Returns:
//   - *ToonMaterial: the new material
func NewToonMaterial(node host.Node, graph host.Graph) *ToonMaterial {
	m := &ToonMaterial{node: node, graph: graph}
	m.dirty.Store(true)

	m.subs = append(m.subs,
		graph.OnNodeAdded(func(n host.Node) {
			if isLight(n) {
				m.dirty.Store(true)
			}
		}),
		graph.OnNodeRemoved(func(n host.Node) {
			if isLight(n) {
				m.dirty.Store(true)
			}
		}),
		graph.OnNodeRenamed(func(n host.Node, prevName string) {
			_ = prevName
			if isLight(n) {
				m.dirty.Store(true)
			}
		}),
	)

	return m
}

// IsDirty reports and keeps the invalidation flag; Describe clears it.
//
// Returns:
//   - bool: true if the description may be stale
func (m *ToonMaterial) IsDirty() bool {
	return m.dirty.Load()
}

// Describe reads the node's current attributes into a shader description.
// Missing attributes fall back to the ramp defaults. An enabled light link
// whose light cannot be resolved degrades to unlinked shading rather than
// failing the whole material.
//
// Returns:
//   - ToonShader: the shader description
func (m *ToonMaterial) Describe() ToonShader {
	s := ToonShader{
		FiveLevel: m.boolAttr(attrShowAdvanced, false),

		HighlightColor:  m.colorAttr(attrHighlightColor, defaultHighlightColor),
		HighlightColor2: m.colorAttr(attrHighlightColor2, defaultMidColor),
		MidColor:        m.colorAttr(attrMidColor, defaultMidColor),
		ShadowColor:     m.colorAttr(attrShadowColor, defaultShadowColor),
		ShadowColor2:    m.colorAttr(attrShadowColor2, defaultShadowColor),

		ShadowPosition:     m.floatAttr(attrShadowPos, defaultShadowPos),
		MidPosition:        m.floatAttr(attrMidPos, defaultMidPos),
		HighlightPosition2: m.floatAttr(attrHighlightPos2, defaultHighlightPos2),
		HighlightPosition:  m.floatAttr(attrHighlightPos, defaultHighlightPos),

		ShadowRange:     m.floatAttr(attrShadowRange, defaultRampRange),
		MidRange:        m.floatAttr(attrMidRange, defaultRampRange),
		HighlightRange2: m.floatAttr(attrHighlightRange2, defaultRampRange),
		HighlightRange:  m.floatAttr(attrHighlightRange, defaultRampRange),

		Transparency: m.floatAttr(attrTransparency, 0),
	}

	if m.boolAttr(attrEnableLightLink, false) {
		name := m.stringAttr(attrLinkedLight, "")
		light, ok := m.resolveLight(name)
		if ok {
			s.LightLinking = true
			s.LinkedLight = light
		} else {
			log.Printf("toon material %s: linked light %q not found, disabling light linking", m.node.Name(), name)
		}
	}

	m.dirty.Store(false)
	return s
}

// Dispose releases the material's graph subscriptions.
func (m *ToonMaterial) Dispose() {
	for _, sub := range m.subs {
		sub.Release()
	}
	m.subs = nil
}

// resolveLight finds the named node and verifies it is a light.
func (m *ToonMaterial) resolveLight(name string) (host.Node, bool) {
	if name == "" {
		return nil, false
	}
	n, ok := m.graph.FindNode(name)
	if !ok || !isLight(n) {
		return nil, false
	}
	return n, true
}

func (m *ToonMaterial) boolAttr(attr string, def bool) bool {
	p, ok := m.node.Plug(attr)
	if !ok {
		return def
	}
	return p.AsBool()
}

func (m *ToonMaterial) floatAttr(attr string, def float32) float32 {
	p, ok := m.node.Plug(attr)
	if !ok {
		return def
	}
	return p.AsFloat()
}

func (m *ToonMaterial) stringAttr(attr, def string) string {
	p, ok := m.node.Plug(attr)
	if !ok {
		return def
	}
	return p.AsString()
}

func (m *ToonMaterial) colorAttr(attr string, def [3]float32) [3]float32 {
	p, ok := m.node.Plug(attr)
	if !ok {
		return def
	}
	return p.AsVector()
}

// isLight reports whether a node is a scene light.
func isLight(n host.Node) bool {
	return strings.HasSuffix(n.TypeName(), "Light")
}
