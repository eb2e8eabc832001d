// Package api provides the HTTP REST surface of the tracker.
//
// # Overview
//
// Handlers translate HTTP requests into calls on service.Service and map the
// returned errors onto status codes through httputil.WriteServiceError:
//
//	tracker.ErrNotFound      -> 404 (also returned for entities the caller cannot see)
//	tracker.ErrAccessDenied  -> 403
//	tracker.ErrConflict      -> 409
//	*tracker.ValidationError -> 400
//
// # Routes
//
// Unauthenticated:
//
//	GET    /health, /health/live, /health/ready
//	GET    /metrics
//
// Authenticated with a bearer API token:
//
//	GET    /me                                        - Caller identity and token scopes
//	GET    /me/tokens                                 - List the caller's tokens
//	POST   /me/tokens                                 - Issue a token
//	DELETE /me/tokens/{id}                            - Revoke a token
//
//	GET    /projects                                  - Accessible projects
//	POST   /projects                                  - Create a project owned by the caller
//	GET    /projects/{id}                             - Get a project
//	PATCH  /projects/{id}                             - Update a project (owner)
//	DELETE /projects/{id}                             - Delete a project (owner)
//
//	GET    /projects/{id}/members                     - List members
//	POST   /projects/{id}/members                     - Add a member (owner)
//	PATCH  /projects/{id}/members/{user_id}           - Change a role (owner)
//	DELETE /projects/{id}/members/{user_id}           - Remove a member (owner)
//
//	GET    /projects/{id}/invitations                 - Pending invitations (owner)
//	POST   /projects/{id}/invitations                 - Invite a user (owner)
//	DELETE /projects/{id}/invitations/{invitation_id} - Revoke an invitation (owner)
//	POST   /invitations/{token}/accept                - Accept an invitation (invitee)
//
//	GET    /projects/{id}/tickets[?status=]           - List tickets
//	POST   /projects/{id}/tickets                     - File a ticket
//	GET    /tickets/{id}                              - Get a ticket
//	PATCH  /tickets/{id}                              - Update a ticket through the workflow
//	DELETE /tickets/{id}                              - Delete a ticket
//	GET    /tickets/{id}/events                       - Workflow history
//
//	GET    /tickets/{id}/comments                     - Comments in display order
//	POST   /tickets/{id}/comments                     - Post a comment
//	GET    /tickets/{id}/thread                       - Comments nested by parent
//	GET    /comments/{id}                             - Get a comment
//	PATCH  /comments/{id}                             - Edit a comment (author)
//	DELETE /comments/{id}                             - Delete a comment (author)
//
//	POST   /authz/check                               - Evaluate one operation on one entity
//	GET    /me/projects                               - Caller's accessible project ids
//
// # Usage
//
//	handler := api.NewRouter(api.ServerConfig{
//		Service:  svc,
//		Checker:  evaluator,
//		Resolver: resolver,
//		Tokens:   tokens,
//		Metrics:  metrics,
//		Registry: registry,
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", handler)
package api
