package compiler

import (
	"strings"

	"github.com/roach88/eoql/internal/ir"
	"github.com/roach88/eoql/internal/query"
)

// Stage is one named phase of a compiled plan. Every stage except the final
// projection renders as a CTE; the projection is the outer SELECT.
type Stage struct {
	Name   string
	Inputs []string
	SQL    string
}

// ExecContext carries the epistemic parameters the executor must honor when
// interpreting plan output. It travels with the plan so results can always
// say under which frame, time, and policy they were produced.
type ExecContext struct {
	FrameID        string
	FrameVersion   string
	TimeKind       query.TimeKind
	TimeValue      string // as_of, or "start/end" for BETWEEN
	Mode           query.Mode
	Visibility     query.Visibility
	ConflictPolicy query.ConflictPolicy
	Target         query.Target
}

// Plan is the staged, auditable output of compilation.
//
// Stages are ordered; the last is always the projection. Notes record, in
// stage order, what each phase enforced. Guard is the conflict-policy
// marker appended to the SQL text so downstream handling stays visible in
// the artifact itself.
type Plan struct {
	Stages    []Stage
	Notes     []string
	Context   ExecContext
	Source    query.Query
	QueryHash string
	Recursive bool // grounding traversal emits a recursive CTE
	Guard     string
}

// SQL assembles the full statement: CTE chain, outer SELECT, and the
// conflict-policy guard comment when one applies.
func (p *Plan) SQL() string {
	var b strings.Builder

	if p.Recursive {
		b.WriteString("WITH RECURSIVE\n")
	} else {
		b.WriteString("WITH\n")
	}

	ctes := p.Stages[:len(p.Stages)-1]
	for i, s := range ctes {
		b.WriteString(s.SQL)
		if i < len(ctes)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}

	b.WriteString(p.Stages[len(p.Stages)-1].SQL)

	if p.Guard != "" {
		b.WriteString("\n")
		b.WriteString(p.Guard)
	}

	return b.String()
}

// Fingerprint returns the content-addressed identity of the plan text.
// Equal queries always compile to equal fingerprints.
func (p *Plan) Fingerprint() string {
	return ir.HashWithDomain(ir.DomainPlan, []byte(p.SQL()))
}

// Stage returns the named stage, or nil when the plan has no such phase.
func (p *Plan) Stage(name string) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}
