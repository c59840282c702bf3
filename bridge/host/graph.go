package host

// Graph is the host's dependency graph, scoped to the queries the bridge
// needs: node lookup by name and node lifecycle notifications.
type Graph interface {
	// FindNode resolves a node by name.
	//
	// Parameters:
	//   - name: the node name
	//
	// Returns:
	//   - Node: the node, or nil
	//   - bool: true if the node was found
	FindNode(name string) (Node, bool)

	// OnNodeAdded registers a callback fired when a node is added to the
	// graph.
	//
	// Parameters:
	//   - fn: callback receiving the new node
	//
	// Returns:
	//   - Subscription: handle to release the registration
	OnNodeAdded(fn func(node Node)) Subscription

	// OnNodeRemoved registers a callback fired when a node is removed from
	// the graph.
	//
	// Parameters:
	//   - fn: callback receiving the removed node
	//
	// Returns:
	//   - Subscription: handle to release the registration
	OnNodeRemoved(fn func(node Node)) Subscription

	// OnNodeRenamed registers a callback fired when any node is renamed.
	//
	// Parameters:
	//   - fn: callback receiving the node and its previous name
	//
	// Returns:
	//   - Subscription: handle to release the registration
	OnNodeRenamed(fn func(node Node, prevName string)) Subscription
}

// Node is a dependency-graph node.
type Node interface {
	// Name returns the node's current name.
	Name() string

	// UUID returns the node's stable unique identifier.
	UUID() string

	// TypeName returns the node's type name (e.g. "pointLight").
	TypeName() string

	// Plug resolves an attribute plug by name.
	//
	// Parameters:
	//   - attr: the attribute name
	//
	// Returns:
	//   - Plug: the plug, or nil
	//   - bool: true if the attribute exists
	Plug(attr string) (Plug, bool)

	// Connections returns all of the node's connected plugs.
	//
	// Returns:
	//   - []Plug: the connected plugs, in declaration order
	Connections() []Plug

	// Child returns the node's i-th child in the scene hierarchy.
	//
	// Parameters:
	//   - index: the child index
	//
	// Returns:
	//   - Node: the child node, or nil
	//   - bool: true if the child exists
	Child(index int) (Node, bool)

	// WorldTransform returns the node's own world transform as a flat
	// column-major 4x4 matrix.
	//
	// Returns:
	//   - []float32: 16-element column-major matrix
	WorldTransform() []float32

	// ParentWorldTransform returns the world transform of the node's
	// parent, or identity if the node has no parent.
	//
	// Returns:
	//   - []float32: 16-element column-major matrix
	ParentWorldTransform() []float32

	// OnPlugDirty registers a callback fired when any of the node's plugs
	// is marked dirty.
	//
	// Parameters:
	//   - fn: callback receiving the dirtied plug
	//
	// Returns:
	//   - Subscription: handle to release the registration
	OnPlugDirty(fn func(plug Plug)) Subscription
}

// Plug is a read-only view of one attribute value and its connections.
type Plug interface {
	// Name returns the plug's partial name, e.g. "inh[0]".
	Name() string

	// AsBool reads the plug value as a boolean.
	AsBool() bool

	// AsInt reads the plug value as an integer.
	AsInt() int64

	// AsFloat reads the plug value as a float.
	AsFloat() float32

	// AsString reads the plug value as a string.
	AsString() string

	// AsVector reads the plug value as a 3-component vector.
	AsVector() [3]float32

	// ArrayData returns the plug's per-instance array attribute data, if
	// the plug carries any.
	//
	// Returns:
	//   - ArrayAttrs: the array data, or nil
	//   - bool: true if the plug carries array data
	ArrayData() (ArrayAttrs, bool)

	// ConnectedTo returns the nodes whose plugs feed this plug.
	//
	// Returns:
	//   - []Node: upstream nodes, in connection order
	ConnectedTo() []Node
}

// ArrayAttrs is a bundle of named per-instance arrays, as emitted by a
// procedural instancing source.
type ArrayAttrs interface {
	// VectorArray returns the named vector array, or nil if absent.
	//
	// Parameters:
	//   - name: the array name, e.g. "position"
	//
	// Returns:
	//   - [][3]float32: the vectors, one per instance
	VectorArray(name string) [][3]float32
}
