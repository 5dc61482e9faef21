package access

import (
	"context"
	"fmt"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/google/uuid"
)

// capabilityModel matches (role, resource kind, action) and carries the
// ownership scope as a fourth policy field.
const capabilityModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act, scope

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

var capabilities = [][]string{
	{"patient", "appointment", "create", "own"},
	{"patient", "appointment", "read", "own"},
	{"patient", "appointment", "update", "own"},
	{"patient", "appointment", "transition", "own"},
	{"patient", "appointment", "cancel", "own"},
	{"patient", "appointment", "list", "own"},
	{"patient", "patient", "read", "own"},
	{"patient", "patient", "update", "own"},
	{"patient", "doctor", "read", "public"},

	{"doctor", "appointment", "read", "own"},
	{"doctor", "appointment", "update", "own"},
	{"doctor", "appointment", "transition", "own"},
	{"doctor", "appointment", "list", "own"},
	{"doctor", "patient", "read", "related"},
	{"doctor", "patient", "update", "related"},
	{"doctor", "doctor", "read", "own"},
	{"doctor", "doctor", "update", "own"},

	{"admin", "*", "*", "any"},
}

// Status moves each role may request on its own appointments. Anything
// else needs the unrestricted scope.
var transitionGrants = map[domain.Role]map[appointment.AppointmentStatus][]appointment.AppointmentStatus{
	domain.RoleDoctor: {
		appointment.StatusPending:   {appointment.StatusConfirmed, appointment.StatusNoShow},
		appointment.StatusConfirmed: {appointment.StatusCompleted, appointment.StatusNoShow},
	},
	domain.RolePatient: {
		appointment.StatusPending: {appointment.StatusCancelled},
	},
}

// Fields each role may edit on its own appointments, and the statuses in
// which it may do so.
var updateGrants = map[domain.Role]struct {
	fields   []string
	statuses []appointment.AppointmentStatus
}{
	domain.RolePatient: {fields: []string{"reason", "notes"}, statuses: []appointment.AppointmentStatus{appointment.StatusPending}},
	domain.RoleDoctor:  {fields: []string{"notes"}, statuses: appointment.ActiveStatuses},
}

// relationshipStatuses make a doctor-patient pair related.
var relationshipStatuses = []appointment.AppointmentStatus{appointment.StatusConfirmed, appointment.StatusCompleted}

// RelationshipChecker answers whether a doctor has treated or is about to
// treat a patient. It is queried on every decision and never cached.
type RelationshipChecker interface {
	HasRelationship(ctx context.Context, doctorID, patientID uuid.UUID, statuses ...appointment.AppointmentStatus) (bool, error)
}

type Guard struct {
	enforcer  *casbin.SyncedEnforcer
	relations RelationshipChecker
}

func NewGuard(relations RelationshipChecker) (*Guard, error) {
	m, err := model.NewModelFromString(capabilityModel)
	if err != nil {
		return nil, fmt.Errorf("loading capability model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("creating enforcer: %w", err)
	}
	if _, err := e.AddPolicies(capabilities); err != nil {
		return nil, fmt.Errorf("loading capabilities: %w", err)
	}
	return &Guard{enforcer: e, relations: relations}, nil
}

// Authorize decides whether actor may perform action on res.
func (g *Guard) Authorize(ctx context.Context, actor domain.Actor, action Action, res Resource) (Decision, error) {
	if d, ok := gate(actor, action); !ok {
		return d, nil
	}

	scope, ok, err := g.capability(actor.Role, res.Kind(), action)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return deny(fmt.Sprintf("%s may not %s %s records", actor.Role, action, res.Kind())), nil
	}

	return g.evaluate(ctx, actor, scope, res)
}

// Require is Authorize with a denial turned into an authorization error.
func (g *Guard) Require(ctx context.Context, actor domain.Actor, action Action, res Resource) (Decision, error) {
	d, err := g.Authorize(ctx, actor, action, res)
	if err != nil {
		return d, fmt.Errorf("authorizing %s on %s: %w", action, res.Kind(), err)
	}
	if !d.Allowed {
		return d, domain.Forbidden(d.Reason)
	}
	return d, nil
}

// AuthorizeTransition checks a status change request on a loaded
// appointment. forced is true when the actor holds the unrestricted scope
// and may override the regular state machine. A move that is not an edge
// of the state machine passes the guard so the lifecycle reports it.
func (g *Guard) AuthorizeTransition(ctx context.Context, actor domain.Actor, a *appointment.Appointment, to appointment.AppointmentStatus) (forced bool, err error) {
	d, err := g.Require(ctx, actor, ActionTransition, AppointmentOf(a))
	if err != nil {
		return false, err
	}
	if d.Scope == ScopeAny {
		return true, nil
	}
	if !appointment.CanTransition(a.Status, to) {
		return false, nil
	}
	for _, s := range transitionGrants[actor.Role][a.Status] {
		if s == to {
			return false, nil
		}
	}
	return false, domain.Forbidden(fmt.Sprintf("%s may not move an appointment from %s to %s", actor.Role, a.Status, to))
}

// AuthorizeUpdate checks an edit of the given fields. override is true for
// actors allowed to edit any field in any status.
func (g *Guard) AuthorizeUpdate(ctx context.Context, actor domain.Actor, a *appointment.Appointment, fields []string) (override bool, err error) {
	d, err := g.Require(ctx, actor, ActionUpdate, AppointmentOf(a))
	if err != nil {
		return false, err
	}
	if d.Scope == ScopeAny {
		return true, nil
	}

	grant := updateGrants[actor.Role]
	if !containsStatus(grant.statuses, a.Status) {
		return false, domain.Forbidden(fmt.Sprintf("%s may not edit a %s appointment", actor.Role, a.Status))
	}
	for _, f := range fields {
		if !containsString(grant.fields, f) {
			return false, domain.Forbidden(fmt.Sprintf("%s may not edit %s", actor.Role, f))
		}
	}
	return false, nil
}

// ScopeAppointmentQuery restricts a listing to what actor may see. Owners
// are pinned to their own appointments; asking for someone else's is denied.
func (g *Guard) ScopeAppointmentQuery(ctx context.Context, actor domain.Actor, q *appointment.ListAppointmentsQuery) error {
	if d, ok := gate(actor, ActionList); !ok {
		return domain.Forbidden(d.Reason)
	}
	scope, ok, err := g.capability(actor.Role, KindAppointment, ActionList)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Forbidden(fmt.Sprintf("%s may not list appointments", actor.Role))
	}
	if scope == ScopeAny {
		return nil
	}

	var pinned **uuid.UUID
	switch actor.Role {
	case domain.RolePatient:
		pinned = &q.PatientID
	case domain.RoleDoctor:
		pinned = &q.DoctorID
	default:
		return domain.Forbidden(fmt.Sprintf("%s may not list appointments", actor.Role))
	}
	if *pinned != nil && **pinned != actor.ID {
		return domain.Forbidden("appointments of other users are not visible")
	}
	id := actor.ID
	*pinned = &id
	return nil
}

// gate applies the account status rules shared by every decision.
func gate(actor domain.Actor, action Action) (Decision, bool) {
	if !actor.Role.IsValid() {
		return deny("unknown role"), false
	}
	if !actor.Status.CanRead() {
		return deny(fmt.Sprintf("account is %s", actor.Status)), false
	}
	if !actor.Status.CanTransact() && !action.readOnly() {
		return deny(fmt.Sprintf("account is %s and may only read", actor.Status)), false
	}
	return Decision{}, true
}

func (g *Guard) capability(role domain.Role, kind Kind, action Action) (Scope, bool, error) {
	ok, rule, err := g.enforcer.EnforceEx(string(role), string(kind), string(action))
	if err != nil {
		return "", false, fmt.Errorf("enforcing capability: %w", err)
	}
	if !ok || len(rule) < 4 {
		return "", false, nil
	}
	return Scope(rule[3]), true, nil
}

func (g *Guard) evaluate(ctx context.Context, actor domain.Actor, scope Scope, res Resource) (Decision, error) {
	switch scope {
	case ScopeAny:
		return allow(scope), nil

	case ScopeOwn:
		if owns(actor, res) {
			return allow(scope), nil
		}
		return deny(fmt.Sprintf("%s is not owned by the caller", res.Kind())), nil

	case ScopeRelated:
		p, ok := res.(Patient)
		if !ok {
			return deny(fmt.Sprintf("no relationship rule for %s", res.Kind())), nil
		}
		related, err := g.relations.HasRelationship(ctx, actor.ID, p.ID, relationshipStatuses...)
		if err != nil {
			return Decision{}, fmt.Errorf("checking doctor-patient relationship: %w", err)
		}
		if !related {
			return deny("no confirmed or completed appointment with this patient"), nil
		}
		return allow(scope), nil

	case ScopePublic:
		if d, ok := res.(Doctor); ok && (d.Active || d.ID == actor.ID) {
			return allow(scope), nil
		}
		return deny(fmt.Sprintf("%s is not publicly visible", res.Kind())), nil
	}

	return deny(fmt.Sprintf("unknown scope %q", scope)), nil
}

func owns(actor domain.Actor, res Resource) bool {
	switch r := res.(type) {
	case Appointment:
		switch actor.Role {
		case domain.RolePatient:
			return r.PatientID == actor.ID
		case domain.RoleDoctor:
			return r.DoctorID == actor.ID
		}
	case Patient:
		return r.ID == actor.ID
	case Doctor:
		return r.ID == actor.ID
	}
	return false
}

func containsStatus(list []appointment.AppointmentStatus, s appointment.AppointmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
