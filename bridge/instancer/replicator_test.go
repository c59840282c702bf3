package instancer

import (
	"bytes"
	"log"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/common"
)

type fakeProxy struct {
	mu        sync.Mutex
	transform []float32
	visible   bool
	dirty     int
	released  bool
}

func (p *fakeProxy) SetSelfTransform(matrix []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transform = matrix
}

func (p *fakeProxy) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = visible
}

func (p *fakeProxy) SetDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty++
}

func (p *fakeProxy) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

func (p *fakeProxy) snapshot() ([]float32, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transform, p.visible, p.released
}

type fakeRenderObject struct {
	mu       sync.Mutex
	node     host.Node
	clones   []*fakeProxy
	batches  []string
	cloneErr error
}

func (o *fakeRenderObject) Node() host.Node {
	return o.node
}

func (o *fakeRenderObject) CloneForBatch(batchUUID string, instancerNode host.Node) (Proxy, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cloneErr != nil {
		return nil, o.cloneErr
	}
	p := &fakeProxy{}
	o.clones = append(o.clones, p)
	o.batches = append(o.batches, batchUUID)
	return p, nil
}

func (o *fakeRenderObject) liveClones() []*fakeProxy {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeProxy(nil), o.clones...)
}

type fakeRegistry struct {
	objects map[host.Node]*fakeRenderObject
}

func (r *fakeRegistry) RenderObject(node host.Node) (RenderObject, bool) {
	o, ok := r.objects[node]
	if !ok {
		return nil, false
	}
	return o, true
}

type replicatorFixture struct {
	node     *host.MemoryNode
	shape    *host.MemoryNode
	object   *fakeRenderObject
	registry *fakeRegistry
	rep      Replicator
}

// newReplicatorFixture builds an instancer node with one target transform
// whose first child is the instanced shape.
func newReplicatorFixture(t *testing.T, count int) *replicatorFixture {
	t.Helper()

	node := host.NewMemoryNode("mashRepro", "uuid-instancer", "instancer")
	node.SetAttr(countAttr, int64(count))

	target := host.NewMemoryNode("pCube1", "uuid-cube", "transform")
	shape := host.NewMemoryNode("pCubeShape1", "uuid-shape", "mesh")
	target.AddChild(shape)
	node.Connect("inh[0]", target)

	object := &fakeRenderObject{node: shape}
	registry := &fakeRegistry{objects: map[host.Node]*fakeRenderObject{shape: object}}

	rep, err := NewReplicator(node, registry, WithTransformWorkers(2))
	require.NoError(t, err)
	t.Cleanup(rep.Dispose)

	return &replicatorFixture{node: node, shape: shape, object: object, registry: registry, rep: rep}
}

func TestFreshenClonesAndTransforms(t *testing.T) {
	f := newReplicatorFixture(t, 3)

	samples := host.NewMemoryArrayAttrs()
	samples.SetVectorArray(positionArray, [][3]float32{{0, 0, 0}, {1, 2, 3}, {4, 5, 6}})
	samples.SetVectorArray(rotationArray, [][3]float32{{0, 0, 0}, {0, 0, 90}, {30, 0, 0}})
	samples.SetVectorArray(scaleArray, [][3]float32{{1, 1, 1}, {2, 2, 2}, {1, 3, 1}})
	f.node.SetArrayAttr(samplesAttr, samples)

	// The target's parent carries scale and translation; only the scale
	// may reach the instances.
	parentWorld := make([]float32, 16)
	common.ComposeTransform(parentWorld, 7, 8, 9, 0, 0, 0, 2, 2, 2)
	f.shape.SetParentWorldTransform(parentWorld)

	instancerWorld := make([]float32, 16)
	common.ComposeTransform(instancerWorld, 10, 0, 0, 0, 0, 0, 1, 1, 1)
	f.node.SetWorldTransform(instancerWorld)

	require.NoError(t, f.rep.Freshen())
	require.Equal(t, 3, f.rep.InstanceCount())

	clones := f.object.liveClones()
	require.Len(t, clones, 3)

	sampleVecs := [][3][3]float32{
		{{0, 0, 0}, {0, 0, 0}, {1, 1, 1}},
		{{1, 2, 3}, {0, 0, 90}, {2, 2, 2}},
		{{4, 5, 6}, {30, 0, 0}, {1, 3, 1}},
	}
	var parent, sample, want [16]float32
	common.Detranslate(parent[:], parentWorld)
	for i, p := range clones {
		v := sampleVecs[i]
		common.ComposeTransform(sample[:], v[0][0], v[0][1], v[0][2], v[1][0], v[1][1], v[1][2], v[2][0], v[2][1], v[2][2])
		common.ComposeWorld(want[:], parent[:], sample[:], instancerWorld)

		got, visible, released := p.snapshot()
		require.NotNil(t, got, "instance %d never received a transform", i)
		assert.InDeltaSlice(t, want[:], got, 1e-5, "instance %d", i)
		assert.True(t, visible)
		assert.False(t, released)
	}
}

func TestBatchIdentityDiffersFromInstancer(t *testing.T) {
	f := newReplicatorFixture(t, 2)

	require.NoError(t, f.rep.Freshen())

	batch := f.rep.BatchUUID()
	assert.NotEmpty(t, batch)
	assert.NotEqual(t, f.node.UUID(), batch)
	for _, b := range f.object.batches {
		assert.Equal(t, batch, b, "all clones of one generation share the batch identity")
	}
}

func TestFreshenDistributesInstancesRoundRobin(t *testing.T) {
	node := host.NewMemoryNode("mashRepro", "uuid-instancer", "instancer")
	node.SetAttr(countAttr, int64(5))

	registry := &fakeRegistry{objects: make(map[host.Node]*fakeRenderObject)}
	objects := make([]*fakeRenderObject, 2)
	for i, name := range []string{"pCube1", "pSphere1"} {
		target := host.NewMemoryNode(name, "uuid-"+name, "transform")
		shape := host.NewMemoryNode(name+"Shape", "uuid-"+name+"-shape", "mesh")
		target.AddChild(shape)
		node.Connect("inh["+name+"]", target)

		objects[i] = &fakeRenderObject{node: shape}
		registry.objects[shape] = objects[i]
	}

	rep, err := NewReplicator(node, registry, WithTransformWorkers(2))
	require.NoError(t, err)
	t.Cleanup(rep.Dispose)

	require.NoError(t, rep.Freshen())

	assert.Equal(t, 5, rep.InstanceCount())
	assert.Len(t, objects[0].liveClones(), 3)
	assert.Len(t, objects[1].liveClones(), 2)
}

func TestCountChangeHidesAndRegenerates(t *testing.T) {
	f := newReplicatorFixture(t, 5)
	require.NoError(t, f.rep.Freshen())
	require.Equal(t, 5, f.rep.InstanceCount())

	firstBatch := f.rep.BatchUUID()
	firstGen := f.object.liveClones()

	f.node.SetAttr(countAttr, int64(3))
	f.node.MarkPlugDirty(countAttr)

	// The stale instances disappear immediately, not at the next sync.
	assert.Equal(t, 0, f.rep.InstanceCount())
	assert.True(t, f.rep.IsDirty())
	for i, p := range firstGen {
		_, visible, released := p.snapshot()
		assert.False(t, visible, "stale instance %d still visible", i)
		assert.True(t, released, "stale instance %d not released", i)
	}

	require.NoError(t, f.rep.Freshen())
	assert.Equal(t, 3, f.rep.InstanceCount())
	assert.False(t, f.rep.IsDirty())
	assert.NotEqual(t, firstBatch, f.rep.BatchUUID(), "a regeneration is a new batch")
}

func TestSampleChangeKeepsInstances(t *testing.T) {
	f := newReplicatorFixture(t, 4)
	require.NoError(t, f.rep.Freshen())
	firstGen := f.object.liveClones()
	require.Len(t, firstGen, 4)

	samples := host.NewMemoryArrayAttrs()
	samples.SetVectorArray(positionArray, [][3]float32{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}})
	f.node.SetArrayAttr(samplesAttr, samples)
	f.node.MarkPlugDirty(samplesAttr)

	assert.True(t, f.rep.IsDirty())
	assert.Equal(t, 4, f.rep.InstanceCount(), "a transform-only change keeps the instance set")

	require.NoError(t, f.rep.Freshen())
	assert.Same(t, firstGen[0], f.object.liveClones()[0], "proxies are reused, not recloned")

	got, _, _ := firstGen[1].snapshot()
	require.NotNil(t, got)
	assert.InDelta(t, float32(2), got[12], 1e-5, "the new sample position reached the proxy")
}

func TestShorterSampleArraysFallBackToIdentity(t *testing.T) {
	f := newReplicatorFixture(t, 4)

	samples := host.NewMemoryArrayAttrs()
	samples.SetVectorArray(positionArray, [][3]float32{{1, 1, 1}, {2, 2, 2}})
	f.node.SetArrayAttr(samplesAttr, samples)

	require.NoError(t, f.rep.Freshen())

	clones := f.object.liveClones()
	require.Len(t, clones, 4)

	identity := make([]float32, 16)
	common.Identity(identity)
	got, _, _ := clones[3].snapshot()
	assert.InDeltaSlice(t, identity, got, 1e-5, "instances past the arrays get the identity sample")
}

func TestNoTargetsYieldsNoInstances(t *testing.T) {
	node := host.NewMemoryNode("mashRepro", "uuid-instancer", "instancer")
	node.SetAttr(countAttr, int64(5))

	rep, err := NewReplicator(node, &fakeRegistry{objects: map[host.Node]*fakeRenderObject{}}, WithTransformWorkers(1))
	require.NoError(t, err)
	t.Cleanup(rep.Dispose)

	require.NoError(t, rep.Freshen())
	assert.Equal(t, 0, rep.InstanceCount())
	assert.Empty(t, rep.BatchUUID())
}

func TestCloneFailurePropagatesAndRollsBack(t *testing.T) {
	f := newReplicatorFixture(t, 3)
	f.object.cloneErr = assert.AnError

	err := f.rep.Freshen()
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, f.rep.InstanceCount())
}

func TestDisposeReleasesProxiesAndSubscription(t *testing.T) {
	f := newReplicatorFixture(t, 3)
	require.NoError(t, f.rep.Freshen())

	f.rep.Dispose()

	for i, p := range f.object.liveClones() {
		_, _, released := p.snapshot()
		assert.True(t, released, "instance %d not released", i)
	}

	// The plug subscription is gone, so host changes no longer reach the
	// replicator.
	f.node.MarkPlugDirty(countAttr)
	assert.False(t, f.rep.IsDirty())
}

// unconnectedFixture builds an instancer node with a resolvable target that
// is not yet connected to a hierarchy input.
func unconnectedFixture(t *testing.T, count int) (*host.MemoryNode, *host.MemoryNode, *fakeRenderObject, Replicator) {
	t.Helper()

	node := host.NewMemoryNode("mashRepro", "uuid-instancer", "instancer")
	node.SetAttr(countAttr, int64(count))

	target := host.NewMemoryNode("pCube1", "uuid-cube", "transform")
	shape := host.NewMemoryNode("pCubeShape1", "uuid-shape", "mesh")
	target.AddChild(shape)

	object := &fakeRenderObject{node: shape}
	registry := &fakeRegistry{objects: map[host.Node]*fakeRenderObject{shape: object}}

	rep, err := NewReplicator(node, registry, WithTransformWorkers(2))
	require.NoError(t, err)
	t.Cleanup(rep.Dispose)

	return node, target, object, rep
}

func TestEmptyInstanceSetRegeneratesWhenTargetConnects(t *testing.T) {
	node, target, _, rep := unconnectedFixture(t, 5)

	// No hierarchy input yet: the refresh yields nothing.
	require.NoError(t, rep.Freshen())
	require.Equal(t, 0, rep.InstanceCount())

	// The count is unchanged, but an empty proxy set with a live target
	// must regenerate.
	node.Connect("inh[0]", target)
	require.NoError(t, rep.Freshen())
	assert.Equal(t, 5, rep.InstanceCount())
	assert.NotEmpty(t, rep.BatchUUID())
}

func TestMissingTargetsLogOncePerTransition(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	node, target, _, rep := unconnectedFixture(t, 5)

	require.NoError(t, rep.Freshen())
	require.NoError(t, rep.Freshen())
	assert.Equal(t, 1, strings.Count(buf.String(), "no resolvable instancing target"),
		"repeated refreshes without targets log a single warning")

	node.Connect("inh[0]", target)
	require.NoError(t, rep.Freshen())
	require.Equal(t, 5, rep.InstanceCount())
}

func TestTransformPassCoversAllInstances(t *testing.T) {
	node := host.NewMemoryNode("mashRepro", "uuid-instancer", "instancer")
	node.SetAttr(countAttr, int64(8))

	target := host.NewMemoryNode("pCube1", "uuid-cube", "transform")
	shape := host.NewMemoryNode("pCubeShape1", "uuid-shape", "mesh")
	target.AddChild(shape)
	node.Connect("inh[0]", target)

	object := &fakeRenderObject{node: shape}
	registry := &fakeRegistry{objects: map[host.Node]*fakeRenderObject{shape: object}}

	// More instances than workers, so the pass splits into uneven stripes.
	rep, err := NewReplicator(node, registry, WithTransformWorkers(3))
	require.NoError(t, err)
	t.Cleanup(rep.Dispose)

	positions := make([][3]float32, 8)
	for i := range positions {
		positions[i] = [3]float32{float32(i + 1), 0, 0}
	}
	samples := host.NewMemoryArrayAttrs()
	samples.SetVectorArray(positionArray, positions)
	node.SetArrayAttr(samplesAttr, samples)

	require.NoError(t, rep.Freshen())

	clones := object.liveClones()
	require.Len(t, clones, 8)
	for i, p := range clones {
		got, _, _ := p.snapshot()
		require.NotNil(t, got, "instance %d never received a transform", i)
		assert.InDelta(t, float32(i+1), got[12], 1e-5, "instance %d got another stripe's sample", i)
	}
}
