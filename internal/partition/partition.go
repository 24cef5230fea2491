// Package partition implements the key→partition routing function
// spec.md §4.5 names: partition(K, |P|) = CRC32(K) mod |P|, and the
// partition-map lookup that turns a partition index into an active or
// replica node index.
package partition

import "hash/crc32"

// Of returns the partition index a key maps to within a map of the
// given size (spec.md §8's deterministic-routing property: this must
// be stable across retries and independent of anything but the key and
// the partition count).
func Of(key []byte, numPartitions int) int {
	if numPartitions <= 0 {
		return 0
	}
	return int(crc32.ChecksumIEEE(key)) % numPartitions
}

// Map is an array of length N_partitions, each entry an ordered list of
// node indices: index 0 is the active owner, indices 1.. are replicas.
// An active index of -1 means the partition has no owner yet and
// requires reconfiguration before it can be routed (spec.md §3).
type Map [][]int

// ActiveNode returns the active node index owning partitionID, or -1
// if the map doesn't cover that index or the partition has no owner.
func (m Map) ActiveNode(partitionID int) int {
	if partitionID < 0 || partitionID >= len(m) {
		return -1
	}
	row := m[partitionID]
	if len(row) == 0 {
		return -1
	}
	return row[0]
}

// ReplicaNode returns the node index for replica selector replicaIdx
// (0-based) of partitionID, or -1 if no such replica is configured.
func (m Map) ReplicaNode(partitionID, replicaIdx int) int {
	if partitionID < 0 || partitionID >= len(m) {
		return -1
	}
	row := m[partitionID]
	idx := replicaIdx + 1
	if idx < 0 || idx >= len(row) {
		return -1
	}
	return row[idx]
}

// NumReplicas reports how many replica owners partitionID has.
func (m Map) NumReplicas(partitionID int) int {
	if partitionID < 0 || partitionID >= len(m) {
		return 0
	}
	n := len(m[partitionID]) - 1
	if n < 0 {
		return 0
	}
	return n
}

// Ready reports whether every partition in the map has an active
// owner — spec.md §3's invariant that the partition→node mapping is
// total except during a window where reconfiguration must be
// triggered.
func (m Map) Ready() bool {
	for _, row := range m {
		if len(row) == 0 || row[0] < 0 {
			return false
		}
	}
	return true
}
