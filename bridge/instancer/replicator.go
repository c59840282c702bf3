// Package instancer replicates render geometry from a procedural instancing
// node. A Replicator watches one instancer node in the host graph, clones a
// render proxy per instance from the instanced target geometry, and keeps
// each clone's world transform in sync with the node's per-instance samples.
// The transform pass fans out across a bounded worker pool, since instance
// counts routinely reach the tens of thousands.
package instancer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/common"
)

const (
	countAttr     = "instanceCount"
	samplesAttr   = "inp"
	hierarchyPlug = "inh["

	positionArray = "position"
	rotationArray = "rotation"
	scaleArray    = "scale"
)

// TransformSample is one instance's transform: translation, Euler rotation in
// degrees and per-axis scale.
type TransformSample struct {
	Position [3]float32
	Rotation [3]float32
	Scale    [3]float32
}

// Proxy is one replicated render instance owned by a Replicator.
type Proxy interface {
	// SetSelfTransform sets the instance's world transform. The proxy takes
	// ownership of the slice.
	//
	// Parameters:
	//   - matrix: 16-element column-major world matrix
	SetSelfTransform(matrix []float32)

	// SetVisible toggles the instance's visibility.
	//
	// Parameters:
	//   - visible: whether the instance renders
	SetVisible(visible bool)

	// SetDirty marks the instance for re-sync on the next render pass.
	SetDirty()

	// Release frees the instance's render resources.
	Release()
}

// RenderObject is the renderable registered for a piece of host geometry,
// from which instance proxies are cloned.
type RenderObject interface {
	// Node returns the host node the renderable was built from.
	Node() host.Node

	// CloneForBatch creates one instance proxy belonging to a replication
	// batch.
	//
	// Parameters:
	//   - batchUUID: the batch identity shared by all clones of one generation
	//   - instancerNode: the instancer node driving the batch
	//
	// Returns:
	//   - Proxy: the new instance proxy
	//   - error: error if the clone cannot be created
	CloneForBatch(batchUUID string, instancerNode host.Node) (Proxy, error)
}

// ObjectRegistry resolves host geometry to its registered renderable.
type ObjectRegistry interface {
	// RenderObject looks up the renderable for a host node.
	//
	// Parameters:
	//   - node: the host geometry node
	//
	// Returns:
	//   - RenderObject: the renderable, or nil
	//   - bool: true if the node has a registered renderable
	RenderObject(node host.Node) (RenderObject, bool)
}

// Replicator keeps a set of instance proxies in sync with one instancer node.
type Replicator interface {
	// Freshen synchronizes the instance set with the host node: regenerates
	// the proxies when the instance count or target set changed, then
	// recomputes every instance transform.
	//
	// Returns:
	//   - error: error if cloning an instance fails
	Freshen() error

	// ShouldBeRecreated reports whether the instance set no longer matches
	// the host node and the next Freshen will regenerate it.
	//
	// Returns:
	//   - bool: true if regeneration is pending
	ShouldBeRecreated() bool

	// IsDirty reports whether a plug change occurred since the last
	// Freshen.
	//
	// Returns:
	//   - bool: true if a Freshen is needed
	IsDirty() bool

	// InstanceCount returns the number of live instance proxies.
	//
	// Returns:
	//   - int: the live instance count
	InstanceCount() int

	// BatchUUID returns the identity of the current instance generation.
	// Always distinct from the instancer node's own UUID.
	//
	// Returns:
	//   - string: the batch identity, empty before the first generation
	BatchUUID() string

	// Dispose releases the plug subscription and all instance proxies.
	Dispose()
}

// instanceSlot pairs a proxy with the target geometry it was cloned from.
type instanceSlot struct {
	proxy  Proxy
	target host.Node
}

// replicator implements the Replicator interface.
type replicator struct {
	node     host.Node
	registry ObjectRegistry

	mu        *sync.Mutex
	instances []instanceSlot
	cached    int
	batchUUID string
	noTargets bool

	pending atomic.Bool

	workers int
	pool    worker.DynamicWorkerPool

	sub host.Subscription
}

var _ Replicator = &replicator{}

// ReplicatorOption is a functional option for configuring a Replicator.
type ReplicatorOption func(*replicator)

// WithTransformWorkers sets the worker count of the parallel transform pass.
//
// Parameters:
//   - workers: worker count (default runtime.NumCPU())
//
// Returns:
//   - ReplicatorOption: option function to apply
func WithTransformWorkers(workers int) ReplicatorOption {
	return func(r *replicator) {
		if workers > 0 {
			r.workers = workers
		}
	}
}

// NewReplicator creates a replicator watching the given instancer node. The
// first Freshen generates the initial instance set.
//
// Parameters:
//   - node: the instancer node to replicate from
//   - registry: resolves target geometry to renderables
//   - options: functional options for replicator configuration
//
// Returns:
//   - Replicator: the new replicator
//   - error: error if a required argument is missing
func NewReplicator(node host.Node, registry ObjectRegistry, options ...ReplicatorOption) (Replicator, error) {
	if node == nil || registry == nil {
		return nil, fmt.Errorf("new replicator: node and registry are required")
	}

	r := &replicator{
		node:     node,
		registry: registry,
		mu:       &sync.Mutex{},
		cached:   -1,
		workers:  runtime.NumCPU(),
	}

	for _, opt := range options {
		opt(r)
	}

	// Queue size of 256 accommodates typical stripe counts with headroom.
	r.pool = worker.NewDynamicWorkerPool(r.workers, 256, 1*time.Second)

	r.sub = node.OnPlugDirty(r.onPlugDirty)
	r.pending.Store(true)

	return r, nil
}

// onPlugDirty reacts to a host plug change. When the change invalidates the
// instance set the stale proxies are hidden and dropped immediately, so a
// count change never leaves ghost instances on screen until the next sync.
func (r *replicator) onPlugDirty(plug host.Plug) {
	_ = plug

	r.mu.Lock()
	if r.recreationNeededLocked(r.liveCount(), r.targetObjects()) {
		r.clearLocked()
	} else {
		for _, slot := range r.instances {
			slot.proxy.SetDirty()
		}
	}
	r.mu.Unlock()

	r.pending.Store(true)
}

func (r *replicator) Freshen() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.liveCount()
	targets := r.targetObjects()

	if r.recreationNeededLocked(count, targets) {
		r.clearLocked()
		if count == 0 || len(targets) == 0 {
			if count > 0 && !r.noTargets {
				log.Printf("instancer %s: no resolvable instancing target, instances suspended", r.node.Name())
				r.noTargets = true
			}
			r.cached = count
			r.pending.Store(false)
			return nil
		}
		if err := r.generateLocked(count, targets); err != nil {
			return err
		}
	}
	r.noTargets = false
	r.cached = count

	samples := r.transformSamples()
	r.applyTransformsLocked(samples, r.node.WorldTransform())

	for _, slot := range r.instances {
		slot.proxy.SetDirty()
		slot.proxy.SetVisible(true)
	}
	r.pending.Store(false)
	return nil
}

func (r *replicator) ShouldBeRecreated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recreationNeededLocked(r.liveCount(), r.targetObjects())
}

func (r *replicator) IsDirty() bool {
	return r.pending.Load()
}

func (r *replicator) InstanceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

func (r *replicator) BatchUUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchUUID
}

func (r *replicator) Dispose() {
	if r.sub != nil {
		r.sub.Release()
	}
	r.mu.Lock()
	r.clearLocked()
	r.mu.Unlock()
}

// recreationNeededLocked reports whether the live instance set matches the
// host node. An empty proxy set with a non-zero count always regenerates, so
// instances suspended by a vanished target come back when the target does.
// Caller holds mu.
func (r *replicator) recreationNeededLocked(count int, targets []host.Node) bool {
	return count != r.cached || len(targets) == 0 || (len(r.instances) == 0 && count > 0)
}

// clearLocked hides and releases every instance proxy. Caller holds mu.
func (r *replicator) clearLocked() {
	for _, slot := range r.instances {
		slot.proxy.SetVisible(false)
		slot.proxy.Release()
	}
	r.instances = nil
	r.cached = -1
}

// generateLocked clones count proxies from the targets, distributing
// instances round-robin. Caller holds mu.
func (r *replicator) generateLocked(count int, targets []host.Node) error {
	batchUUID := newBatchUUID()
	for batchUUID == r.node.UUID() {
		batchUUID = newBatchUUID()
	}

	instances := make([]instanceSlot, 0, count)
	for i := 0; i < count; i++ {
		target := targets[i%len(targets)]
		ro, ok := r.registry.RenderObject(target)
		if !ok {
			log.Printf("instancer %s: target %s has no renderable, skipping", r.node.Name(), target.Name())
			continue
		}
		proxy, err := ro.CloneForBatch(batchUUID, r.node)
		if err != nil {
			for _, slot := range instances {
				slot.proxy.Release()
			}
			return fmt.Errorf("instancer %s: clone instance %d of %s: %w", r.node.Name(), i, target.Name(), err)
		}
		instances = append(instances, instanceSlot{proxy: proxy, target: target})
	}

	r.instances = instances
	r.batchUUID = batchUUID
	return nil
}

// applyTransformsLocked recomputes every instance's world transform, striping
// the instance range across the worker pool. Caller holds mu.
func (r *replicator) applyTransformsLocked(samples []TransformSample, instancer []float32) {
	n := len(r.instances)
	if n == 0 {
		return
	}

	workers := r.workers
	if workers > n {
		workers = n
	}
	stride := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for t := 0; t < workers; t++ {
		lo := t * stride
		hi := lo + stride
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}

		wg.Add(1)
		r.pool.SubmitTask(worker.Task{
			ID: t,
			Do: func() (any, error) {
				defer wg.Done()

				var parent, sample [16]float32
				for i := lo; i < hi; i++ {
					slot := r.instances[i]
					common.Detranslate(parent[:], slot.target.ParentWorldTransform())

					s := sampleAt(samples, i)
					common.ComposeTransform(sample[:],
						s.Position[0], s.Position[1], s.Position[2],
						s.Rotation[0], s.Rotation[1], s.Rotation[2],
						s.Scale[0], s.Scale[1], s.Scale[2])

					world := make([]float32, 16)
					common.ComposeWorld(world, parent[:], sample[:], instancer)
					slot.proxy.SetSelfTransform(world)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// liveCount reads the instance count the host node asks for.
func (r *replicator) liveCount() int {
	plug, ok := r.node.Plug(countAttr)
	if !ok {
		return 0
	}
	count := plug.AsInt()
	if count < 0 {
		return 0
	}
	return int(count)
}

// targetObjects resolves the geometry fed into the instancer's hierarchy
// inputs. Each input transform contributes its first child shape, or the
// transform itself when it has no children.
func (r *replicator) targetObjects() []host.Node {
	var targets []host.Node
	for _, plug := range r.node.Connections() {
		if !strings.HasPrefix(plug.Name(), hierarchyPlug) {
			continue
		}
		for _, upstream := range plug.ConnectedTo() {
			if shape, ok := upstream.Child(0); ok {
				targets = append(targets, shape)
			} else {
				targets = append(targets, upstream)
			}
		}
	}
	return targets
}

// transformSamples reads the per-instance position, rotation and scale
// arrays. Arrays may be shorter than the instance count; missing samples fall
// back to the identity transform.
func (r *replicator) transformSamples() []TransformSample {
	plug, ok := r.node.Plug(samplesAttr)
	if !ok {
		return nil
	}
	data, ok := plug.ArrayData()
	if !ok {
		return nil
	}

	positions := data.VectorArray(positionArray)
	rotations := data.VectorArray(rotationArray)
	scales := data.VectorArray(scaleArray)

	n := len(positions)
	if len(rotations) > n {
		n = len(rotations)
	}
	if len(scales) > n {
		n = len(scales)
	}

	samples := make([]TransformSample, n)
	for i := range samples {
		samples[i].Scale = [3]float32{1, 1, 1}
		if i < len(positions) {
			samples[i].Position = positions[i]
		}
		if i < len(rotations) {
			samples[i].Rotation = rotations[i]
		}
		if i < len(scales) {
			samples[i].Scale = scales[i]
		}
	}
	return samples
}

// sampleAt returns the i-th sample, or the identity sample past the end.
func sampleAt(samples []TransformSample, i int) TransformSample {
	if i < len(samples) {
		return samples[i]
	}
	return TransformSample{Scale: [3]float32{1, 1, 1}}
}

// newBatchUUID returns a random 128-bit identity in canonical form.
func newBatchUUID() string {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// The process-wide random source failing is unrecoverable.
		panic(fmt.Sprintf("instancer: random source: %v", err))
	}
	s := hex.EncodeToString(raw[:])
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32]
}
