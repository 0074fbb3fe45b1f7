package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// nodeFromEnv builds the process-wide snowflake node from SNOWFLAKE_NODE,
// defaulting to node 1.
func nodeFromEnv() *snowflake.Node {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64); err == nil {
			nodeID = v
		}
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node
}

// NewSnowflakeID generates a time-ordered id. A single node is shared by the
// process so ids generated in the same millisecond never collide.
func NewSnowflakeID() string {
	return nodeFromEnv().Generate().String()
}
