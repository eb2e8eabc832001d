// Package tracker defines the issue tracker's domain model: users, projects,
// memberships, invitations, tickets, comments and ticket events, together
// with the error taxonomy shared by every layer above it.
//
// Enumerated fields (Role, TicketType, Priority, Status) validate themselves
// and report unknown values as *ValidationError, which matches ErrValidation
// under errors.Is:
//
//	if err := ticket.Validate(); tracker.IsValidation(err) {
//	    // 400
//	}
//
// ErrNotFound and ErrAccessDenied are kept separate internally, but callers
// without read access to an entity only ever observe ErrNotFound.
package tracker
