package render

import (
	"fmt"
	"strings"

	"tensorc/internal/uop"
)

// names assigns each value-producing statement a local C identifier,
// in first-use order, so emitted kernels read as "v0, v1, v2..." in the
// same order a human incrementally writing the loop nest would declare
// them.
type names struct {
	n    map[*uop.UOp]string
	next int
}

func newNames() *names { return &names{n: map[*uop.UOp]string{}} }

func (nm *names) get(u *uop.UOp) string {
	if s, ok := nm.n[u]; ok {
		return s
	}
	s := fmt.Sprintf("v%d", nm.next)
	nm.next++
	nm.n[u] = s
	return s
}

// emit walks the ordered statement list produced by order() and writes
// one dialect-flavoured C-family statement per UOp, closing RANGE/IF
// scopes at the positions order() computed. Grounded on the teacher's
// internal/formatter walking a parsed tree and emitting one output line
// per node, generalized here to a flat UOp list instead of an AST.
func emit(d Dialect, kernelName string, params []*uop.UOp, stmts []*uop.UOp, closesAfter map[int][]*uop.UOp) string {
	var b strings.Builder
	nm := newNames()
	indent := 1

	writeIndent := func() { b.WriteString(strings.Repeat("  ", indent)) }

	fmt.Fprintf(&b, "%s %s(", d.KernelPrefix, kernelName)
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		buf := p.Arg.(int)
		prefix := d.BufferPrefix
		if prefix != "" {
			prefix += " "
		}
		fmt.Fprintf(&b, "%s%s* data%d", prefix, p.DType, buf)
	}
	b.WriteString(") {\n")

	for i, u := range stmts {
		switch u.Op {
		case uop.DEFINE_GLOBAL:
			// declared in the signature, nothing to emit in the body

		case uop.RANGE:
			min, max, loopID, _ := uop.RangeArg(u)
			writeIndent()
			fmt.Fprintf(&b, "for (int %s = %d; %s < %d; %s++) {\n", loopID, min, loopID, max, loopID)
			nm.n[u] = loopID
			indent++

		case uop.DEFINE_LOCAL:
			name, size := uop.LocalArg(u)
			writeIndent()
			fmt.Fprintf(&b, "%s %s %s[%d];\n", d.SmemPrefix, u.DType, name, size)
			nm.n[u] = name

		case uop.DEFINE_ACC:
			writeIndent()
			v := nm.get(u)
			fmt.Fprintf(&b, "%s %s = %s;\n", u.DType, v, operand(nm, u.Src[0]))

		case uop.CONST:
			// constants are rendered inline at their use site, no
			// statement needed

		case uop.LOAD:
			writeIndent()
			v := nm.get(u)
			fmt.Fprintf(&b, "%s %s = %s;\n", u.DType, v, renderLoad(d, nm, u))

		case uop.ALU:
			writeIndent()
			v := nm.get(u)
			fmt.Fprintf(&b, "%s %s = %s;\n", u.DType, v, renderALU(d, nm, u))

		case uop.CAST, uop.BITCAST:
			writeIndent()
			v := nm.get(u)
			fmt.Fprintf(&b, "%s %s = (%s)%s;\n", u.DType, v, u.DType, operand(nm, u.Src[0]))

		case uop.GEP:
			writeIndent()
			v := nm.get(u)
			lane := u.Arg.(int)
			fmt.Fprintf(&b, "%s %s = %s.s%d;\n", u.DType, v, operand(nm, u.Src[0]), lane)

		case uop.VECTORIZE:
			writeIndent()
			v := nm.get(u)
			args := make([]string, len(u.Src))
			for i, s := range u.Src {
				args[i] = operand(nm, s)
			}
			fmt.Fprintf(&b, "%s%d %s = %s(%s);\n", u.DType, len(u.Src), v, d.Float4Ctor, strings.Join(args, ", "))

		case uop.PHI:
			writeIndent()
			acc := operand(nm, u.Src[0])
			fmt.Fprintf(&b, "%s = %s;\n", acc, operand(nm, u.Src[1]))
			nm.n[u] = acc

		case uop.STORE:
			writeValid := operand(nm, u.Src[3])
			buf := bufferRef(nm, u.Src[0])
			writeIndent()
			if writeValid == "1" {
				fmt.Fprintf(&b, "%s[%s] = %s;\n", buf, operand(nm, u.Src[1]), operand(nm, u.Src[2]))
			} else {
				fmt.Fprintf(&b, "if (%s) %s[%s] = %s;\n", writeValid, buf, operand(nm, u.Src[1]), operand(nm, u.Src[2]))
			}

		case uop.BARRIER:
			writeIndent()
			b.WriteString(d.Barrier)
			b.WriteString("\n")

		case uop.IF:
			writeIndent()
			fmt.Fprintf(&b, "if (%s) {\n", operand(nm, u.Src[0]))
			indent++

		case uop.SINK, uop.NOOP:
			// carry no emitted text of their own

		default:
			writeIndent()
			fmt.Fprintf(&b, "/* unrendered %s */\n", u.Op)
		}

		for range closesAfter[i] {
			indent--
			writeIndent()
			b.WriteString("}\n")
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func operand(nm *names, u *uop.UOp) string {
	if u.Op == uop.CONST {
		return constText(u)
	}
	return nm.get(u)
}

func constText(u *uop.UOp) string {
	v := u.Arg.(float64)
	if u.DType == uop.Bool || u.DType == uop.Int32 {
		return fmt.Sprintf("%d", int64(v))
	}
	s := fmt.Sprintf("%g", v)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s + "f"
}

// bufferRef names the buffer a LOAD/STORE targets: a kernel parameter
// renders as "data<index>" (its declared signature name), a workgroup
// DEFINE_LOCAL buffer as its own declared identifier.
func bufferRef(nm *names, buf *uop.UOp) string {
	if buf.Op == uop.DEFINE_LOCAL {
		return nm.get(buf)
	}
	return fmt.Sprintf("data%d", buf.Arg.(int))
}

func renderLoad(d Dialect, nm *names, u *uop.UOp) string {
	buf := bufferRef(nm, u.Src[0])
	idx := operand(nm, u.Src[1])
	valid := operand(nm, u.Src[2])
	expr := fmt.Sprintf("%s[%s]", buf, idx)
	if valid == "1" {
		return expr
	}
	return fmt.Sprintf("(%s ? %s : 0)", valid, expr)
}

func renderALU(d Dialect, nm *names, u *uop.UOp) string {
	op := u.Arg.(uop.ALUOp)
	tmpl, ok := d.CodeForOp[op]
	if !ok {
		return fmt.Sprintf("/* unsupported op %s */", op)
	}
	args := make([]string, len(u.Src))
	for i, s := range u.Src {
		args[i] = operand(nm, s)
	}
	return tmpl(args...)
}
