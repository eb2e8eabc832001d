// Package rbac decides who may see and change which projects, memberships,
// tickets and comments.
//
// # Access
//
// Every rule starts from one question: may user U access project P? The
// answer is the accessible-project set
//
//	AP(U) = {p : p.owner = U} ∪ {m.project : m.user = U}
//
// computed by a Resolver. SQLResolver runs that union as a single flat
// query on a privileged connection, or through the Postgres
// tracker_accessible_project_ids function, so it never passes through the
// row-level policies that are themselves defined in terms of membership.
//
// # Policy
//
// Evaluator.CanPerform applies the policy table:
//
//	Project     read: access          create: caller becomes owner
//	            update/delete: owner
//	Membership  read: access          create: owner, or the member themself
//	            update/delete: owner
//	Ticket      read: access          create: access and caller is reporter
//	            update: assignee or owner
//	            delete: owner
//	Comment     read: ticket readable create: ticket readable and caller is author
//	            update/delete: author
//
// Anything else is denied. Membership roles are recorded but are not
// consulted.
//
// # Request scope
//
// Wrap handlers with RequestScope (or call WithRequestCache) so a request
// that performs several checks resolves the caller's projects once. Code
// that changes ownership or membership mid-request calls ResetRequestCache.
//
// # HTTP
//
//	POST /authz/check  {"operation":"update","entity_type":"ticket","entity_id":"..."}
//	GET  /me/projects
//
// Entities the caller cannot read are reported as 404, never 403.
package rbac
