// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package orchestrator

import "scavenger-miner/internal/config"

// CalculateWorkerGroups implements spec.md §4.8's group sizing: it
// returns the worker count assigned to each of the addresses startMining
// picks for one batch. The returned slice's length is group_count and
// len(slice) <= numCandidates.
func CalculateWorkerGroups(totalWorkers, numCandidates int, mode config.GroupingMode, workersPerAddress int) []int {
	if totalWorkers <= 0 || numCandidates <= 0 {
		return nil
	}

	minPerAddr := minWorkersPerAddress(totalWorkers, mode, workersPerAddress)
	if minPerAddr < 1 {
		minPerAddr = 1
	}

	maxGroups := totalWorkers / minPerAddr
	groupCount := maxGroups
	if numCandidates < groupCount {
		groupCount = numCandidates
	}
	if groupCount == 0 {
		groupCount = 1
	}

	sizes := make([]int, groupCount)
	base := totalWorkers / groupCount
	remainder := totalWorkers % groupCount
	for i := range sizes {
		sizes[i] = base
		if i < remainder {
			sizes[i]++
		}
	}
	return sizes
}

func minWorkersPerAddress(totalWorkers int, mode config.GroupingMode, workersPerAddress int) int {
	switch mode {
	case config.GroupingGrouped:
		if workersPerAddress < 1 {
			return 1
		}
		return workersPerAddress
	case config.GroupingAllOnOne:
		return totalWorkers
	default: // config.GroupingAuto
		if totalWorkers <= 4 {
			return totalWorkers
		}
		n := totalWorkers / 4
		if n < 3 {
			return 3
		}
		if n > 5 {
			return 5
		}
		return n
	}
}
