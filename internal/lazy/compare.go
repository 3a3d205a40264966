package lazy

// Earlier implements the cycle-safe comparator spec §4.3 uses to decide
// ordering for asymmetric fusion choices: it BFS-expands both sides'
// dependency frontiers in lockstep; if one side is found in the
// other's expansion, that side is declared "earlier". Ties are broken
// deterministically on ascending Buffer/Node creation id, resolving the
// Open Question named in spec §9.
func Earlier(a, b *Node) *Node {
	if a == b {
		return a
	}
	frontierA := []*Node{a}
	frontierB := []*Node{b}
	seenA := map[uint64]bool{a.ID: true}
	seenB := map[uint64]bool{b.ID: true}

	for len(frontierA) > 0 || len(frontierB) > 0 {
		if seenB[a.ID] {
			return a
		}
		if seenA[b.ID] {
			return b
		}
		frontierA = expand(frontierA, seenA)
		frontierB = expand(frontierB, seenB)
		if aIn, bIn := seenB[a.ID], seenA[b.ID]; aIn && bIn {
			break // both discovered simultaneously: tie
		} else if aIn {
			return a
		} else if bIn {
			return b
		}
		if len(frontierA) == 0 && len(frontierB) == 0 {
			break // both fully expanded without containment: tie
		}
	}
	if a.ID < b.ID {
		return a
	}
	return b
}

func expand(frontier []*Node, seen map[uint64]bool) []*Node {
	var next []*Node
	for _, n := range frontier {
		for _, s := range n.Srcs {
			if !seen[s.ID] {
				seen[s.ID] = true
				next = append(next, s)
			}
		}
	}
	return next
}

func containsID(set map[uint64]bool, nodes []*Node) bool {
	for _, n := range nodes {
		if set[n.ID] {
			return true
		}
	}
	return false
}

func anyIn(nodes []*Node, set map[uint64]bool) bool {
	for _, n := range nodes {
		if set[n.ID] {
			return true
		}
	}
	return false
}
