package consensus

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"
)

// NodeRegistry tracks network membership and the leader rotation.
//
// The rotation ranks active nodes by their IPv4 address read as a big-endian
// uint32, highest first. Nodes sharing an address keep their registration
// order. The ranking is recomputed on every membership change, so any two
// processes holding the same registrations derive the same leader for a turn.
type NodeRegistry struct {
	// Registration order. Used as the tie-break, and never reordered.
	nodes []*Node
	byID  map[string]*Node
}

func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{
		nodes: []*Node{},
		byID:  make(map[string]*Node),
	}
}

// ParseIPv4 returns the big-endian integer form of a dotted-quad address.
func ParseIPv4(ip string) (uint32, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// Register adds a node and returns its rotation order. Registering an id that
// already exists changes nothing and returns the current order.
func (r *NodeRegistry) Register(nodeID, ip, publicKey string) (int, error) {
	if node, ok := r.byID[nodeID]; ok {
		return node.RotationOrder, nil
	}

	ipValue, err := ParseIPv4(ip)
	if err != nil {
		return -1, err
	}

	node := &Node{
		NodeID:        nodeID,
		IP:            ip,
		PublicKey:     publicKey,
		RotationOrder: -1,
		Active:        true,
		ipValue:       ipValue,
	}
	r.nodes = append(r.nodes, node)
	r.byID[nodeID] = node
	r.reorder()

	return node.RotationOrder, nil
}

func (r *NodeRegistry) Get(nodeID string) (*Node, bool) {
	node, ok := r.byID[nodeID]
	return node, ok
}

// Deactivate removes a node from the rotation. It reports whether the node
// exists; deactivating an inactive node is a no-op.
func (r *NodeRegistry) Deactivate(nodeID string) bool {
	node, ok := r.byID[nodeID]
	if !ok {
		return false
	}
	if node.Active {
		node.Active = false
		r.reorder()
	}
	return true
}

// Reactivate returns an expelled node to the rotation.
func (r *NodeRegistry) Reactivate(nodeID string) bool {
	node, ok := r.byID[nodeID]
	if !ok {
		return false
	}
	if !node.Active {
		node.Active = true
		r.reorder()
	}
	return true
}

// LeaderForTurn returns the node at position turn mod activeCount.
func (r *NodeRegistry) LeaderForTurn(turn uint16) (string, bool) {
	ordered := r.Ordered()
	if len(ordered) == 0 {
		return "", false
	}
	return ordered[int(turn)%len(ordered)].NodeID, true
}

// Ordered returns the active nodes sorted by rotation order.
func (r *NodeRegistry) Ordered() []*Node {
	ordered := make([]*Node, r.ActiveCount())
	for _, node := range r.nodes {
		if node.Active {
			ordered[node.RotationOrder] = node
		}
	}
	return ordered
}

func (r *NodeRegistry) ActiveCount() int {
	count := 0
	for _, node := range r.nodes {
		if node.Active {
			count++
		}
	}
	return count
}

// All returns every node, active or not, in registration order.
func (r *NodeRegistry) All() []*Node {
	all := make([]*Node, len(r.nodes))
	copy(all, r.nodes)
	return all
}

func (r *NodeRegistry) reorder() {
	active := make([]*Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		if node.Active {
			active = append(active, node)
		} else {
			node.RotationOrder = -1
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].ipValue > active[j].ipValue
	})

	for i, node := range active {
		node.RotationOrder = i
	}
}

// restore rebuilds the registry from persisted nodes, which must be listed in
// registration order. Rotation orders are recomputed rather than trusted.
func (r *NodeRegistry) restore(nodes []Node) error {
	r.nodes = make([]*Node, 0, len(nodes))
	r.byID = make(map[string]*Node, len(nodes))

	for _, n := range nodes {
		if _, dup := r.byID[n.NodeID]; dup {
			return fmt.Errorf("%w: duplicate node %q", ErrInvalidStateFile, n.NodeID)
		}
		ipValue, err := ParseIPv4(n.IP)
		if err != nil {
			return fmt.Errorf("%w: node %q: %v", ErrInvalidStateFile, n.NodeID, err)
		}
		node := n
		node.ipValue = ipValue
		r.nodes = append(r.nodes, &node)
		r.byID[node.NodeID] = &node
	}

	r.reorder()
	return nil
}
