package gen

import (
	"fmt"

	"creatorhub-engine/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen",
	fx.Provide(NewSnowflakeNode),
	fx.Provide(func(n *SnowflakeNode) IDGenerator { return n }),
)

// IDGenerator issues unique, roughly time ordered string ids.
type IDGenerator interface {
	NextID() string
}

type SnowflakeNode struct {
	node *snowflake.Node
}

// NewSnowflakeNode builds a generator for the configured NODE_ID. Each running
// process must use a distinct node id.
func NewSnowflakeNode(cfg *config.Config) (*SnowflakeNode, error) {
	return NewNode(cfg.NodeID)
}

func NewNode(nodeID int64) (*SnowflakeNode, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNode{node: node}, nil
}

func (s *SnowflakeNode) NextID() string {
	return s.node.Generate().String()
}
