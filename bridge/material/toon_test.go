package material

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
)

func newToonFixture(t *testing.T) (*host.MemoryNode, *host.MemoryGraph, *ToonMaterial) {
	t.Helper()
	node := host.NewMemoryNode("toonShader1", "uuid-toon", "toonMaterial")
	graph := host.NewMemoryGraph()
	m := NewToonMaterial(node, graph)
	t.Cleanup(m.Dispose)
	return node, graph, m
}

func TestDescribeDefaults(t *testing.T) {
	_, _, m := newToonFixture(t)

	s := m.Describe()

	assert.False(t, s.FiveLevel)
	assert.Equal(t, [3]float32{0.8, 0.8, 0.8}, s.HighlightColor)
	assert.Equal(t, [3]float32{0.4, 0.4, 0.4}, s.MidColor)
	assert.Equal(t, [3]float32{0, 0, 0}, s.ShadowColor)

	assert.Equal(t, float32(0.2), s.ShadowPosition)
	assert.Equal(t, float32(0.5), s.MidPosition)
	assert.Equal(t, float32(0.8), s.HighlightPosition2)
	assert.Equal(t, float32(0.9), s.HighlightPosition)

	assert.Equal(t, float32(0.1), s.ShadowRange)
	assert.Equal(t, float32(0.1), s.MidRange)
	assert.Equal(t, float32(0.1), s.HighlightRange2)
	assert.Equal(t, float32(0.1), s.HighlightRange)

	assert.Zero(t, s.Transparency)
	assert.False(t, s.LightLinking)
	assert.Nil(t, s.LinkedLight)
}

func TestDescribeReadsAttributes(t *testing.T) {
	node, _, m := newToonFixture(t)

	node.SetAttr(attrShowAdvanced, true)
	node.SetAttr(attrHighlightColor, [3]float32{1, 0.9, 0.2})
	node.SetAttr(attrMidPos, float32(0.6))
	node.SetAttr(attrTransparency, float32(0.25))

	s := m.Describe()

	assert.True(t, s.FiveLevel)
	assert.Equal(t, [3]float32{1, 0.9, 0.2}, s.HighlightColor)
	assert.Equal(t, float32(0.6), s.MidPosition)
	assert.Equal(t, float32(0.25), s.Transparency)
	// Untouched attributes keep their defaults.
	assert.Equal(t, float32(0.2), s.ShadowPosition)
}

func TestLightLinkingResolvesLight(t *testing.T) {
	node, graph, m := newToonFixture(t)

	light := host.NewMemoryNode("keyLight", "uuid-light", "pointLight")
	graph.AddNode(light)

	node.SetAttr(attrEnableLightLink, true)
	node.SetAttr(attrLinkedLight, "keyLight")

	s := m.Describe()

	require.True(t, s.LightLinking)
	require.NotNil(t, s.LinkedLight)
	assert.Equal(t, "keyLight", s.LinkedLight.Name())
}

func TestLightLinkingDegradesWhenLightMissing(t *testing.T) {
	node, _, m := newToonFixture(t)

	node.SetAttr(attrEnableLightLink, true)
	node.SetAttr(attrLinkedLight, "goneLight")

	s := m.Describe()

	assert.False(t, s.LightLinking, "a missing light disables linking instead of failing")
	assert.Nil(t, s.LinkedLight)
}

func TestLightLinkingRejectsNonLightNode(t *testing.T) {
	node, graph, m := newToonFixture(t)

	graph.AddNode(host.NewMemoryNode("pCube1", "uuid-cube", "transform"))
	node.SetAttr(attrEnableLightLink, true)
	node.SetAttr(attrLinkedLight, "pCube1")

	s := m.Describe()

	assert.False(t, s.LightLinking)
	assert.Nil(t, s.LinkedLight)
}

func TestLightLifecycleInvalidatesMaterial(t *testing.T) {
	_, graph, m := newToonFixture(t)

	m.Describe()
	require.False(t, m.IsDirty())

	light := host.NewMemoryNode("keyLight", "uuid-light", "spotLight")
	graph.AddNode(light)
	assert.True(t, m.IsDirty(), "a new light may satisfy a pending link")

	m.Describe()
	require.False(t, m.IsDirty())

	require.NoError(t, graph.RenameNode("keyLight", "rimLight"))
	assert.True(t, m.IsDirty(), "a rename can break or satisfy a link")

	m.Describe()
	graph.RemoveNode("rimLight")
	assert.True(t, m.IsDirty())
}

func TestNonLightLifecycleIsIgnored(t *testing.T) {
	_, graph, m := newToonFixture(t)

	m.Describe()
	graph.AddNode(host.NewMemoryNode("pSphere1", "uuid-sphere", "transform"))
	assert.False(t, m.IsDirty())
}

func TestDisposeStopsInvalidation(t *testing.T) {
	_, graph, m := newToonFixture(t)

	m.Describe()
	m.Dispose()

	graph.AddNode(host.NewMemoryNode("keyLight", "uuid-light", "areaLight"))
	assert.False(t, m.IsDirty())
}
