package conversation

import (
	"encoding/json"

	"github.com/google/uuid"
)

// NodeID identifies a message node in the conversation tree.
type NodeID uuid.UUID

// NullNode is the zero NodeID, used for "no parent".
var NullNode = NodeID(uuid.Nil)

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

// ParseNodeID parses a stored uuid string.
func ParseNodeID(s string) (NodeID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NullNode, err
	}
	return NodeID(id), nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func (id NodeID) IsNull() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}
