package host

import (
	"fmt"
	"sync"
)

// MemoryGraph is an in-memory Graph implementation. It backs the test suites
// and the demo harness, standing in for the host application's dependency
// graph. Thread-safe for concurrent access.
type MemoryGraph struct {
	mu      *sync.Mutex
	nodes   map[string]*MemoryNode
	nextSub int

	addedSubs   map[int]func(Node)
	removedSubs map[int]func(Node)
	renamedSubs map[int]func(Node, string)
}

var _ Graph = &MemoryGraph{}

// NewMemoryGraph creates an empty in-memory dependency graph.
//
// Returns:
//   - *MemoryGraph: the new graph
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		mu:          &sync.Mutex{},
		nodes:       make(map[string]*MemoryNode),
		addedSubs:   make(map[int]func(Node)),
		removedSubs: make(map[int]func(Node)),
		renamedSubs: make(map[int]func(Node, string)),
	}
}

// AddNode inserts a node into the graph and fires node-added callbacks.
//
// Parameters:
//   - n: the node to add
func (g *MemoryGraph) AddNode(n *MemoryNode) {
	g.mu.Lock()
	g.nodes[n.Name()] = n
	subs := make([]func(Node), 0, len(g.addedSubs))
	for _, fn := range g.addedSubs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// RemoveNode deletes a node by name and fires node-removed callbacks.
// Unknown names are ignored.
//
// Parameters:
//   - name: the node name
func (g *MemoryGraph) RemoveNode(name string) {
	g.mu.Lock()
	n, ok := g.nodes[name]
	if ok {
		delete(g.nodes, name)
	}
	subs := make([]func(Node), 0, len(g.removedSubs))
	for _, fn := range g.removedSubs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range subs {
		fn(n)
	}
}

// RenameNode changes a node's name and fires node-renamed callbacks.
//
// Parameters:
//   - name: the current node name
//   - newName: the new node name
//
// Returns:
//   - error: error if no node has the current name
func (g *MemoryGraph) RenameNode(name, newName string) error {
	g.mu.Lock()
	n, ok := g.nodes[name]
	if ok {
		delete(g.nodes, name)
		n.setName(newName)
		g.nodes[newName] = n
	}
	subs := make([]func(Node, string), 0, len(g.renamedSubs))
	for _, fn := range g.renamedSubs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("graph: no node named %q", name)
	}
	for _, fn := range subs {
		fn(n, name)
	}
	return nil
}

func (g *MemoryGraph) FindNode(name string) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil, false
	}
	return n, true
}

func (g *MemoryGraph) OnNodeAdded(fn func(node Node)) Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.addedSubs[id] = fn
	return &memorySub{release: func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.addedSubs, id)
	}}
}

func (g *MemoryGraph) OnNodeRemoved(fn func(node Node)) Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.removedSubs[id] = fn
	return &memorySub{release: func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.removedSubs, id)
	}}
}

func (g *MemoryGraph) OnNodeRenamed(fn func(node Node, prevName string)) Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.renamedSubs[id] = fn
	return &memorySub{release: func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.renamedSubs, id)
	}}
}

// memorySub is a Subscription backed by a release closure. Release is
// idempotent.
type memorySub struct {
	once    sync.Once
	release func()
}

func (s *memorySub) Release() {
	s.once.Do(s.release)
}

// MemoryNode is an in-memory Node implementation.
type MemoryNode struct {
	mu *sync.Mutex

	name     string
	uuid     string
	typeName string

	attrs       map[string]any
	arrayAttrs  map[string]*MemoryArrayAttrs
	connections []*MemoryPlug
	children    []*MemoryNode

	world       []float32
	parentWorld []float32

	nextSub   int
	dirtySubs map[int]func(Plug)
}

var _ Node = &MemoryNode{}

// NewMemoryNode creates a node with the given identity. Transforms default to
// identity matrices.
//
// Parameters:
//   - name: the node name
//   - uuid: the node's stable identifier
//   - typeName: the node type name
//
// Returns:
//   - *MemoryNode: the new node
func NewMemoryNode(name, uuid, typeName string) *MemoryNode {
	world := make([]float32, 16)
	parentWorld := make([]float32, 16)
	world[0], world[5], world[10], world[15] = 1, 1, 1, 1
	parentWorld[0], parentWorld[5], parentWorld[10], parentWorld[15] = 1, 1, 1, 1

	return &MemoryNode{
		mu:          &sync.Mutex{},
		name:        name,
		uuid:        uuid,
		typeName:    typeName,
		attrs:       make(map[string]any),
		arrayAttrs:  make(map[string]*MemoryArrayAttrs),
		world:       world,
		parentWorld: parentWorld,
		dirtySubs:   make(map[int]func(Plug)),
	}
}

// SetAttr sets a scalar attribute value.
//
// Parameters:
//   - attr: the attribute name
//   - value: bool, int64, float32, string or [3]float32
func (n *MemoryNode) SetAttr(attr string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attrs[attr] = value
}

// SetArrayAttr attaches per-instance array data to an attribute.
//
// Parameters:
//   - attr: the attribute name
//   - data: the array bundle
func (n *MemoryNode) SetArrayAttr(attr string, data *MemoryArrayAttrs) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.arrayAttrs[attr] = data
}

// Connect appends a connected plug feeding this node.
//
// Parameters:
//   - plugName: the partial plug name, e.g. "inh[0]"
//   - upstream: nodes the plug is connected to
func (n *MemoryNode) Connect(plugName string, upstream ...*MemoryNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	nodes := make([]Node, len(upstream))
	for i, u := range upstream {
		nodes[i] = u
	}
	n.connections = append(n.connections, &MemoryPlug{name: plugName, connected: nodes})
}

// AddChild appends a child node in the scene hierarchy.
//
// Parameters:
//   - c: the child node
func (n *MemoryNode) AddChild(c *MemoryNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children = append(n.children, c)
}

// SetWorldTransform sets the node's own world transform.
//
// Parameters:
//   - m: 16-element column-major matrix
func (n *MemoryNode) SetWorldTransform(m []float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.world = append([]float32(nil), m...)
}

// SetParentWorldTransform sets the node's parent world transform.
//
// Parameters:
//   - m: 16-element column-major matrix
func (n *MemoryNode) SetParentWorldTransform(m []float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.parentWorld = append([]float32(nil), m...)
}

// MarkPlugDirty fires the node's dirty-plug callbacks for the named plug.
//
// Parameters:
//   - attr: the attribute name of the dirtied plug
func (n *MemoryNode) MarkPlugDirty(attr string) {
	n.mu.Lock()
	plug := &MemoryPlug{name: attr, node: n}
	subs := make([]func(Plug), 0, len(n.dirtySubs))
	for _, fn := range n.dirtySubs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(plug)
	}
}

func (n *MemoryNode) setName(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = name
}

func (n *MemoryNode) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

func (n *MemoryNode) UUID() string {
	return n.uuid
}

func (n *MemoryNode) TypeName() string {
	return n.typeName
}

func (n *MemoryNode) Plug(attr string) (Plug, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, hasAttr := n.attrs[attr]
	_, hasArray := n.arrayAttrs[attr]
	if !hasAttr && !hasArray {
		return nil, false
	}
	return &MemoryPlug{name: attr, node: n}, true
}

func (n *MemoryNode) Connections() []Plug {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Plug, len(n.connections))
	for i, p := range n.connections {
		out[i] = p
	}
	return out
}

func (n *MemoryNode) Child(index int) (Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.children) {
		return nil, false
	}
	return n.children[index], true
}

func (n *MemoryNode) WorldTransform() []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]float32(nil), n.world...)
}

func (n *MemoryNode) ParentWorldTransform() []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]float32(nil), n.parentWorld...)
}

func (n *MemoryNode) OnPlugDirty(fn func(plug Plug)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextSub
	n.nextSub++
	n.dirtySubs[id] = fn
	return &memorySub{release: func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.dirtySubs, id)
	}}
}

// MemoryPlug is an in-memory Plug. Values are read through the owning node's
// attribute map; connection-only plugs have no owning node.
type MemoryPlug struct {
	name      string
	node      *MemoryNode
	connected []Node
}

var _ Plug = &MemoryPlug{}

func (p *MemoryPlug) Name() string {
	return p.name
}

func (p *MemoryPlug) value() any {
	if p.node == nil {
		return nil
	}
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	return p.node.attrs[p.name]
}

func (p *MemoryPlug) AsBool() bool {
	v, _ := p.value().(bool)
	return v
}

func (p *MemoryPlug) AsInt() int64 {
	switch v := p.value().(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (p *MemoryPlug) AsFloat() float32 {
	switch v := p.value().(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	default:
		return 0
	}
}

func (p *MemoryPlug) AsString() string {
	v, _ := p.value().(string)
	return v
}

func (p *MemoryPlug) AsVector() [3]float32 {
	v, _ := p.value().([3]float32)
	return v
}

func (p *MemoryPlug) ArrayData() (ArrayAttrs, bool) {
	if p.node == nil {
		return nil, false
	}
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	data, ok := p.node.arrayAttrs[p.name]
	if !ok {
		return nil, false
	}
	return data, true
}

func (p *MemoryPlug) ConnectedTo() []Node {
	return append([]Node(nil), p.connected...)
}

// MemoryArrayAttrs is an in-memory ArrayAttrs bundle.
type MemoryArrayAttrs struct {
	vectors map[string][][3]float32
}

var _ ArrayAttrs = &MemoryArrayAttrs{}

// NewMemoryArrayAttrs creates an empty array bundle.
//
// Returns:
//   - *MemoryArrayAttrs: the new bundle
func NewMemoryArrayAttrs() *MemoryArrayAttrs {
	return &MemoryArrayAttrs{vectors: make(map[string][][3]float32)}
}

// SetVectorArray stores a named vector array.
//
// Parameters:
//   - name: the array name
//   - data: the vectors, one per instance
func (a *MemoryArrayAttrs) SetVectorArray(name string, data [][3]float32) {
	a.vectors[name] = data
}

func (a *MemoryArrayAttrs) VectorArray(name string) [][3]float32 {
	return a.vectors[name]
}
