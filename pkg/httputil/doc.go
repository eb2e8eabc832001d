// Package httputil holds the HTTP plumbing shared by the tracker API and
// the authorization endpoints: JSON bodies, path and query parsing, the
// error-to-status mapping and the common middleware stack.
//
// # Errors
//
// Handlers return service errors unchanged and let WriteServiceError pick
// the status:
//
//	ticket, err := svc.GetTicket(ctx, caller, id)
//	if err != nil {
//		httputil.WriteServiceError(w, r, err)
//		return
//	}
//
// Validation failures become 400 with a details.field entry, ErrNotFound
// becomes 404 with a fixed body, ErrAccessDenied 403 and ErrConflict 409.
// Anything else is logged through the request logger and reported as a
// bare 500.
//
// # Requests
//
//	var req NewTicket
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
//
// ParseJSON rejects unknown fields and trailing data. Bodies cut off by
// MaxBytesMiddleware are answered with 413.
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1<<20),
//		httputil.ContentTypeMiddleware,
//	)
package httputil
