package utils

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// ReferenceGenerator issues short, unique, human-readable booking references.
type ReferenceGenerator struct {
	node *snowflake.Node
}

func NewReferenceGenerator(nodeID int64) (*ReferenceGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	return &ReferenceGenerator{node: node}, nil
}

// BookingReference returns e.g. "BK-1A2B3C4D5E6F".
func (g *ReferenceGenerator) BookingReference() string {
	return "BK-" + strings.ToUpper(g.node.Generate().Base36())
}
