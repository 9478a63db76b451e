// Package snowflake issues time-ordered 63-bit ids for audit events: 41 bits
// of milliseconds since Epoch, 10 bits of node id and 12 bits of sequence.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is the custom epoch (January 1, 2024 00:00:00 UTC)
	Epoch int64 = 1704067200000 // milliseconds

	nodeBits     = 10
	sequenceBits = 12

	MaxNode      = -1 ^ (-1 << nodeBits)
	sequenceMask = -1 ^ (-1 << sequenceBits)
	nodeShift    = sequenceBits
	timeShift    = sequenceBits + nodeBits

	// small backwards steps (NTP slew) are waited out instead of failing
	maxClockSkew = 5 * time.Millisecond
)

var (
	ErrInvalidNodeID       = errors.New("snowflake: node id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

// Node generates ids for one server instance. Instances sharing a topic must
// use distinct node ids.
type Node struct {
	mu sync.Mutex

	id       int64
	sequence int64
	lastMs   int64

	now func() time.Time
}

func NewNode(id int64) (*Node, error) {
	if id < 0 || id > MaxNode {
		return nil, ErrInvalidNodeID
	}
	return &Node{id: id, now: time.Now}, nil
}

// Generate returns the next id. Ids from one node strictly increase.
func (n *Node) Generate() (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.millis()
	if ms < n.lastMs {
		if time.Duration(n.lastMs-ms)*time.Millisecond > maxClockSkew {
			return 0, ErrClockMovedBackwards
		}
		ms = n.waitUntil(n.lastMs)
	}

	if ms == n.lastMs {
		n.sequence = (n.sequence + 1) & sequenceMask
		// sequence exhausted within this millisecond
		if n.sequence == 0 {
			ms = n.waitUntil(n.lastMs + 1)
		}
	} else {
		n.sequence = 0
	}
	n.lastMs = ms

	return (ms-Epoch)<<timeShift | n.id<<nodeShift | n.sequence, nil
}

func (n *Node) millis() int64 {
	return n.now().UnixMilli()
}

func (n *Node) waitUntil(target int64) int64 {
	ms := n.millis()
	for ms < target {
		time.Sleep(time.Duration(target-ms) * time.Millisecond / 2)
		ms = n.millis()
	}
	return ms
}

// Time reports when id was generated.
func Time(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + Epoch)
}

// NodeOf extracts the node id.
func NodeOf(id int64) int64 {
	return (id >> nodeShift) & MaxNode
}
