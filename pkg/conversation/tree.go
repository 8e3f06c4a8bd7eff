package conversation

import "sync"

// Tree is the in-memory index of message nodes connected by parent-child
// links. Relationships are derived from each message's parent id at insertion
// time; children are tracked per node so sibling and thread lookups do not
// require store queries. The tree keeps track of the root node id and the last
// inserted node id.
type Tree struct {
	mu       sync.RWMutex
	nodes    map[NodeID]*Message
	children map[NodeID][]NodeID
	order    []NodeID
	rootID   NodeID
	lastID   NodeID
}

func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[NodeID]*Message),
		children: make(map[NodeID][]NodeID),
	}
}

// Insert adds a message node. The root id is set on first insert; if the
// message's parent is known, the message is registered as its child.
func (t *Tree) Insert(msg *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[msg.ID()] = msg
	t.order = append(t.order, msg.ID())
	if t.rootID.IsNull() {
		t.rootID = msg.ID()
	}
	t.lastID = msg.ID()

	if parentID, ok := msg.ParentID(); ok {
		if _, exists := t.nodes[parentID]; exists {
			t.children[parentID] = append(t.children[parentID], msg.ID())
		}
	}
}

func (t *Tree) Get(id NodeID) (*Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msg, exists := t.nodes[id]
	return msg, exists
}

// Children returns the ids of all child messages for a given message id.
func (t *Tree) Children(id NodeID) []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]NodeID(nil), t.children[id]...)
}

// Siblings returns the ids of all messages sharing the given message's parent.
func (t *Tree) Siblings(id NodeID) []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, exists := t.nodes[id]
	if !exists {
		return nil
	}
	parentID, ok := node.ParentID()
	if !ok {
		return nil
	}
	var siblings []NodeID
	for _, childID := range t.children[parentID] {
		if childID != id {
			siblings = append(siblings, childID)
		}
	}
	return siblings
}

// Thread returns the linear path from the root to the given message.
func (t *Tree) Thread(id NodeID) []*Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var thread []*Message
	for !id.IsNull() {
		node, exists := t.nodes[id]
		if !exists {
			break
		}
		thread = append([]*Message{node}, thread...)
		parentID, ok := node.ParentID()
		if !ok {
			break
		}
		id = parentID
	}
	return thread
}

// LeftmostThread returns the thread starting at the given message id by always
// descending into the first child, until a leaf is reached.
func (t *Tree) LeftmostThread(id NodeID) []*Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var thread []*Message
	for !id.IsNull() {
		node, exists := t.nodes[id]
		if !exists {
			break
		}
		thread = append(thread, node)
		childIDs := t.children[id]
		if len(childIDs) == 0 {
			break
		}
		id = childIDs[0]
	}
	return thread
}

// All returns every message in insertion order.
func (t *Tree) All() []*Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msgs := make([]*Message, 0, len(t.order))
	for _, id := range t.order {
		msgs = append(msgs, t.nodes[id])
	}
	return msgs
}

// RootID returns the id of the first inserted node.
func (t *Tree) RootID() NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootID
}

// LastID returns the id of the most recently inserted node.
func (t *Tree) LastID() NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastID
}
