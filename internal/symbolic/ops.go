package symbolic

// Add builds a canonicalised sum of two or more nodes.
func Add(nodes ...*Node) *Node {
	return newSum(nodes)
}

// Sub is sugar for Add(a, Mul(b, -1)).
func Sub(a, b *Node) *Node {
	return Add(a, Mul(b, -1))
}

// Mul multiplies a node by an integer constant, distributing into sums
// per the constructor rule x*Sum(parts) -> Sum(x*parts).
func Mul(n *Node, k int64) *Node {
	if k == 0 {
		return Const(0)
	}
	if k == 1 {
		return n
	}
	if isConst(n) {
		return Const(n.Value * k)
	}
	if n.Kind == KindSum {
		children := make([]*Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = Mul(c, k)
		}
		return newSum(children)
	}
	if n.Kind == KindMul {
		return Mul(n.Operand, n.Const*k)
	}
	lo, hi := n.Min*k, n.Max*k
	if k < 0 {
		lo, hi = hi, lo
	}
	return &Node{Kind: KindMul, Operand: n, Const: k, Min: lo, Max: hi}
}

// FloorDiv implements symbolic floor division by a positive constant c,
// applying the Sum-splitting distributive rule from spec §4.1 step 4.
func FloorDiv(n *Node, c int64) *Node {
	if c <= 0 {
		panic("symbolic: FloorDiv requires a positive constant divisor")
	}
	if c == 1 {
		return n
	}
	if isConst(n) {
		return Const(floorDivInt(n.Value, c))
	}
	if n.Kind == KindSum {
		var divisible, rest []*Node
		for _, part := range n.Children {
			coeff := coefficientOf(part)
			if coeff != 0 && modInt(coeff, c) == 0 {
				divisible = append(divisible, part)
			} else {
				rest = append(rest, part)
			}
		}
		if len(rest) == 0 {
			// every term divides c: collapse to one Mul per term, summed,
			// i.e. Sum(part//c for part in parts)
			out := make([]*Node, len(divisible))
			for i, part := range divisible {
				out[i] = divExact(part, c)
			}
			return newSum(out)
		}
		if len(divisible) == 0 {
			lo, hi := divBounds(n, c)
			return &Node{Kind: KindDiv, Operand: n, Const: c, Min: lo, Max: hi}
		}
		divSum := newSum(divisible)
		restSum := newSum(rest)
		return Add(divExact(divSum, c), FloorDiv(restSum, c))
	}
	if n.Min >= 0 && n.Max < c {
		return Const(0)
	}
	lo, hi := divBounds(n, c)
	return &Node{Kind: KindDiv, Operand: n, Const: c, Min: lo, Max: hi}
}

// divExact divides every term of a Sum (or a single node) by c, assuming
// the caller has already proven c divides every coefficient.
func divExact(n *Node, c int64) *Node {
	if isConst(n) {
		return Const(n.Value / c)
	}
	if n.Kind == KindSum {
		out := make([]*Node, len(n.Children))
		for i, part := range n.Children {
			out[i] = divExact(part, c)
		}
		return newSum(out)
	}
	if n.Kind == KindMul {
		return Mul(n.Operand, n.Const/c)
	}
	return FloorDiv(n, c)
}

func divBounds(n *Node, c int64) (int64, int64) {
	return floorDivInt(n.Min, c), floorDivInt(n.Max, c)
}

// Mod implements symbolic modulo by a positive constant, per spec §4.1
// steps 5–6: identity when the operand's range already fits, and
// dropping Sum terms whose coefficient is a multiple of c.
func Mod(n *Node, c int64) *Node {
	if c <= 0 {
		panic("symbolic: Mod requires a positive constant modulus")
	}
	if c == 1 {
		return Const(0)
	}
	if isConst(n) {
		return Const(modInt(n.Value, c))
	}
	if n.Min >= 0 && n.Max < c {
		return n
	}
	if n.Kind == KindSum {
		var kept []*Node
		for _, part := range n.Children {
			coeff := coefficientOf(part)
			if coeff != 0 && modInt(coeff, c) == 0 {
				continue
			}
			kept = append(kept, part)
		}
		if len(kept) == 0 {
			return Const(0)
		}
		reduced := newSum(kept)
		if reduced.Min >= 0 && reduced.Max < c {
			return reduced
		}
		lo, hi := modBounds(reduced, c)
		return &Node{Kind: KindMod, Operand: reduced, Const: c, Min: lo, Max: hi}
	}
	lo, hi := modBounds(n, c)
	return &Node{Kind: KindMod, Operand: n, Const: c, Min: lo, Max: hi}
}

func modBounds(n *Node, c int64) (int64, int64) {
	if n.Min >= 0 && n.Max-n.Min < c {
		return 0, minI64(n.Max, c-1)
	}
	return 0, c - 1
}

// Lt builds the boolean-valued (0/1 ranged) "n < c" predicate, folding
// to a constant when the range already decides it.
func Lt(n *Node, c int64) *Node {
	if isConst(n) {
		return boolNode(n.Value < c)
	}
	if n.Max < c {
		return boolNode(true)
	}
	if n.Min >= c {
		return boolNode(false)
	}
	return &Node{Kind: KindLt, Operand: n, Const: c, Min: 0, Max: 1}
}

// Ge builds "n >= c", defined as the complement of Lt.
func Ge(n *Node, c int64) *Node {
	if isConst(n) {
		return boolNode(n.Value >= c)
	}
	if n.Min >= c {
		return boolNode(true)
	}
	if n.Max < c {
		return boolNode(false)
	}
	return &Node{Kind: KindGe, Operand: n, Const: c, Min: 0, Max: 1}
}

// And conjoins boolean-valued nodes, flattening nested And and dropping
// constant-true children; a constant-false child collapses the whole
// conjunction to false.
func And(nodes ...*Node) *Node {
	var flat []*Node
	for _, n := range nodes {
		if n.Kind == KindAnd {
			flat = append(flat, n.Children...)
		} else {
			flat = append(flat, n)
		}
	}
	var kept []*Node
	for _, n := range flat {
		if isConst(n) {
			if n.Value == 0 {
				return boolNode(false)
			}
			continue
		}
		kept = append(kept, n)
	}
	if len(kept) == 0 {
		return boolNode(true)
	}
	if len(kept) == 1 {
		return kept[0]
	}
	sortChildren(kept)
	lo, hi := int64(1), int64(1)
	for _, n := range kept {
		if n.Min < lo {
			lo = n.Min
		}
		if n.Max < hi {
			hi = n.Max
		}
	}
	return &Node{Kind: KindAnd, Children: kept, Min: minI64(lo, 0), Max: hi}
}

func boolNode(b bool) *Node {
	if b {
		return Const(1)
	}
	return Const(0)
}

// newSum implements the Sum constructor rules from spec §4.1 step 2:
// flatten nested sums, fold constants, drop zeros, unwrap singletons.
func newSum(nodes []*Node) *Node {
	var flat []*Node
	for _, n := range nodes {
		if n.Kind == KindSum {
			flat = append(flat, n.Children...)
		} else {
			flat = append(flat, n)
		}
	}
	var constSum int64
	var terms []*Node
	for _, n := range flat {
		if isConst(n) {
			constSum += n.Value
			continue
		}
		terms = append(terms, n)
	}
	terms = mergeLikeTerms(terms)
	if constSum != 0 {
		terms = append(terms, Const(constSum))
	}
	if len(terms) == 0 {
		return Const(0)
	}
	if len(terms) == 1 {
		return terms[0]
	}
	sortChildren(terms)
	var lo, hi int64
	for _, t := range terms {
		lo += t.Min
		hi += t.Max
	}
	return &Node{Kind: KindSum, Children: terms, Min: lo, Max: hi}
}

// mergeLikeTerms combines Mul nodes sharing the same operand, e.g.
// 2*x + 3*x -> 5*x, keeping the expression flat and canonical.
func mergeLikeTerms(terms []*Node) []*Node {
	type bucket struct {
		base  *Node
		coeff int64
	}
	var buckets []bucket
	var other []*Node
	for _, t := range terms {
		base, coeff := t, int64(1)
		if t.Kind == KindMul {
			base, coeff = t.Operand, t.Const
		}
		merged := false
		for i := range buckets {
			if Equal(buckets[i].base, base) {
				buckets[i].coeff += coeff
				merged = true
				break
			}
		}
		if !merged {
			buckets = append(buckets, bucket{base: base, coeff: coeff})
		}
	}
	for _, b := range buckets {
		if b.coeff == 0 {
			continue
		}
		other = append(other, Mul(b.base, b.coeff))
	}
	return other
}

// coefficientOf returns a term's integer multiplier (1 if it is not a
// Mul node), used by Div/Mod's divisibility partitioning.
func coefficientOf(n *Node) int64 {
	if n.Kind == KindMul {
		return n.Const
	}
	if isConst(n) {
		return n.Value
	}
	return 1
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func modInt(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
