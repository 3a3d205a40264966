package uop

import "fmt"

// Verify checks the structural invariants spec §3/§4.5 require of a
// graph rooted at sink: every RANGE constructed in g has exactly one
// ENDRANGE, every IF has exactly one ENDIF, every DEFINE_ACC has
// exactly one CONST source, and SINK appears exactly once, as sink.
// RANGE/ENDRANGE and IF/ENDIF pairs are control markers rather than
// dataflow children, so — like the teacher's own flat bytecode chunk —
// they are checked against every node the graph has ever interned
// (g.All()), not just sink's dataflow ancestors. It returns every
// violation found rather than stopping at the first, matching spec
// §7's "includes the offending UOp set" requirement for IR invariant
// errors.
func Verify(g *Graph, sink *UOp) []error {
	if sink.Op != SINK {
		return []error{fmt.Errorf("uop: root is %s, not SINK", sink.Op)}
	}
	var errs []error
	rangeCloses := map[*UOp]bool{}
	ifCloses := map[*UOp]bool{}
	sinkCount := 0

	for _, u := range g.All() {
		switch u.Op {
		case ENDRANGE:
			rangeCloses[u.Src[0]] = true
		case ENDIF:
			ifCloses[u.Src[0]] = true
		case SINK:
			sinkCount++
		}
	}
	if sinkCount > 1 {
		errs = append(errs, fmt.Errorf("uop: %d SINK nodes found, want exactly 1", sinkCount))
	}
	for _, u := range g.All() {
		switch u.Op {
		case RANGE:
			if !rangeCloses[u] {
				errs = append(errs, fmt.Errorf("uop: RANGE %s has no matching ENDRANGE", u))
			}
		case IF:
			if !ifCloses[u] {
				errs = append(errs, fmt.Errorf("uop: IF %s has no matching ENDIF", u))
			}
		case DEFINE_ACC:
			if len(u.Src) < 1 || u.Src[0].Op != CONST {
				errs = append(errs, fmt.Errorf("uop: DEFINE_ACC %s must have a CONST initial source", u))
			}
		}
	}
	return errs
}
