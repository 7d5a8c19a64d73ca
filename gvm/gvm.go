// Package gvm implements the guarded virtual machine: the tiny boolean
// expression language used by a tree's recv/send/xtnd/save predicates.
// An equation is evaluated exactly once, at tree creation, over a small
// integer/bool environment produced by the traph; a malformed expression
// is a fatal configuration error discovered at CA startup, never at
// packet-forwarding time (spec.md §4.5).
package gvm

import "fmt"

// Env is the variable environment an equation is evaluated over: hops,
// n_children, and any other identifiers the traph chooses to expose.
type Env map[string]int

// Equation carries the four boolean clauses of a GVM: recv, send, xtnd,
// save.
type Equation struct {
	Recv string
	Send string
	Xtnd string
	Save string
}

// Result is the latched outcome of evaluating all four clauses once.
type Result struct {
	Recv, Send, Xtnd, Save bool
}

// Compile parses all four clauses up front so that a malformed
// expression is reported at tree-creation (CA startup) time rather than
// deferred to first packet.
func (eq Equation) Compile() (*Compiled, error) {
	c := &Compiled{}
	var err error
	if c.recv, err = parse(eq.Recv); err != nil {
		return nil, fmt.Errorf("gvm: recv clause %q: %w", eq.Recv, err)
	}
	if c.send, err = parse(eq.Send); err != nil {
		return nil, fmt.Errorf("gvm: send clause %q: %w", eq.Send, err)
	}
	if c.xtnd, err = parse(eq.Xtnd); err != nil {
		return nil, fmt.Errorf("gvm: xtnd clause %q: %w", eq.Xtnd, err)
	}
	if c.save, err = parse(eq.Save); err != nil {
		return nil, fmt.Errorf("gvm: save clause %q: %w", eq.Save, err)
	}
	return c, nil
}

// Compiled is a parsed Equation ready for repeated evaluation against
// different environments.
type Compiled struct {
	recv, send, xtnd, save node
}

// Eval evaluates all four clauses against env and returns the latched
// Result.
func (c *Compiled) Eval(env Env) (Result, error) {
	recv, err := evalBool(c.recv, env)
	if err != nil {
		return Result{}, fmt.Errorf("eval recv: %w", err)
	}
	send, err := evalBool(c.send, env)
	if err != nil {
		return Result{}, fmt.Errorf("eval send: %w", err)
	}
	xtnd, err := evalBool(c.xtnd, env)
	if err != nil {
		return Result{}, fmt.Errorf("eval xtnd: %w", err)
	}
	save, err := evalBool(c.save, env)
	if err != nil {
		return Result{}, fmt.Errorf("eval save: %w", err)
	}
	return Result{Recv: recv, Send: send, Xtnd: xtnd, Save: save}, nil
}

// EvalRecv/EvalSend/EvalXtnd/EvalSave evaluate a single clause, matching
// spec.md §4.5's per-clause accessor names.
func (c *Compiled) EvalRecv(env Env) (bool, error) { return evalBool(c.recv, env) }
func (c *Compiled) EvalSend(env Env) (bool, error) { return evalBool(c.send, env) }
func (c *Compiled) EvalXtnd(env Env) (bool, error) { return evalBool(c.xtnd, env) }
func (c *Compiled) EvalSave(env Env) (bool, error) { return evalBool(c.save, env) }

func evalBool(n node, env Env) (bool, error) {
	v, err := n.eval(env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to a boolean: %v", v)
	}
	return b, nil
}
