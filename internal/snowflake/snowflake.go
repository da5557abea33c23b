package snowflake

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is 2024-01-01T00:00:00Z in unix milliseconds.
const Epoch int64 = 1704067200000

const (
	nodeBits     = 10
	sequenceBits = 12

	MaxNode     = (1 << nodeBits) - 1
	maxSequence = (1 << sequenceBits) - 1

	nodeShift = sequenceBits
	timeShift = sequenceBits + nodeBits
)

// Generator hands out IDs that sort in creation order within one node.
// Messages use them as the tie-break for equal created_at values.
type Generator struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	lastMs   int64
	now      func() time.Time
}

// NewGenerator returns a generator for the given node in [0, MaxNode].
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, fmt.Errorf("snowflake: node must be between 0 and %d", MaxNode)
	}
	return &Generator{node: node, now: time.Now}, nil
}

// Next returns the next ID. It never goes backwards, even if the wall clock does.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli() - Epoch
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for ms <= g.lastMs {
				ms = g.now().UnixMilli() - Epoch
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return ms<<timeShift | g.node<<nodeShift | g.sequence
}

// Time returns the creation time embedded in id.
func Time(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + Epoch).UTC()
}

// Node returns the node that generated id.
func Node(id int64) int64 {
	return (id >> nodeShift) & MaxNode
}
