package utilities

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewSessionID generates the opaque identifier for a session row. KSUIDs are
// URL-safe and collision-free without a store round-trip, which is all the
// session store needs.
func NewSessionID() string {
	return ksuid.New().String()
}

// NewSnowflakeNode builds a snowflake node using a node ID from the
// SNOWFLAKE_NODE environment variable, defaulting to node 1. Callers hold the
// node and generate IDs from it.
func NewSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			nodeID = n
		}
	}
	return snowflake.NewNode(nodeID)
}
