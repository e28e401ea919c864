// Package status applies role-gated appointment status transitions.
package status

import (
	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/model"
)

// Relation is how an actor stands towards a particular appointment.
type Relation int

const (
	RelationNone Relation = iota
	RelationOwner
	RelationStaff
	RelationAdmin
)

func (r Relation) String() string {
	switch r {
	case RelationOwner:
		return "owner"
	case RelationStaff:
		return "staff"
	case RelationAdmin:
		return "admin"
	default:
		return "none"
	}
}

var (
	nonTerminal = []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusInProgress}
	anyStatus   = []model.Status{
		model.StatusPending, model.StatusConfirmed, model.StatusInProgress,
		model.StatusCompleted, model.StatusCancelled, model.StatusNoShow,
	}

	adminOnly      = []Relation{RelationAdmin}
	staffOrAdmin   = []Relation{RelationAdmin, RelationStaff}
	anyoneInvolved = []Relation{RelationAdmin, RelationStaff, RelationOwner}
)

type rule struct {
	from []model.Status
	to   model.Status
	who  []Relation
}

// defaultRules is the permissive table: COMPLETED and NO_SHOW may be set
// from any status by staff.
var defaultRules = []rule{
	{from: []model.Status{model.StatusPending}, to: model.StatusConfirmed, who: staffOrAdmin},
	{from: nonTerminal, to: model.StatusCancelled, who: anyoneInvolved},
	{from: anyStatus, to: model.StatusCompleted, who: staffOrAdmin},
	{from: nonTerminal, to: model.StatusInProgress, who: staffOrAdmin},
	{from: anyStatus, to: model.StatusNoShow, who: staffOrAdmin},
	{from: []model.Status{model.StatusCancelled}, to: model.StatusPending, who: adminOnly},
}

// strictRules only lets COMPLETED and NO_SHOW follow a non-terminal status.
var strictRules = []rule{
	{from: []model.Status{model.StatusPending}, to: model.StatusConfirmed, who: staffOrAdmin},
	{from: nonTerminal, to: model.StatusCancelled, who: anyoneInvolved},
	{from: nonTerminal, to: model.StatusCompleted, who: staffOrAdmin},
	{from: nonTerminal, to: model.StatusInProgress, who: staffOrAdmin},
	{from: nonTerminal, to: model.StatusNoShow, who: staffOrAdmin},
	{from: []model.Status{model.StatusCancelled}, to: model.StatusPending, who: adminOnly},
}

type edge struct {
	from model.Status
	to   model.Status
}

// Machine is an immutable transition table keyed by (from, to) and holding
// the relations allowed to make each move.
type Machine struct {
	allowed map[edge]map[Relation]bool
}

func NewMachine(strict bool) *Machine {
	rules := defaultRules
	if strict {
		rules = strictRules
	}
	m := &Machine{allowed: make(map[edge]map[Relation]bool)}
	for _, r := range rules {
		for _, from := range r.from {
			e := edge{from: from, to: r.to}
			if m.allowed[e] == nil {
				m.allowed[e] = make(map[Relation]bool)
			}
			for _, who := range r.who {
				m.allowed[e][who] = true
			}
		}
	}
	return m
}

func (m *Machine) Allowed(from, to model.Status, rel Relation) bool {
	return m.allowed[edge{from: from, to: to}][rel]
}

// Check returns an authorization error when rel may not move from to to.
func (m *Machine) Check(from, to model.Status, rel Relation) error {
	if m.Allowed(from, to, rel) {
		return nil
	}
	return apperr.Authorization("%s may not change appointment status from %s to %s", rel, from, to)
}
