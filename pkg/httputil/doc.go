// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Every error body has the shape {"error": "...", "details": {...}}:
//
//	httputil.WriteNotFoundError(w, "role not found")
//	httputil.WriteConflict(w, "role name already exists")
//
// Request bodies are decoded strictly and validated with go-playground
// validator struct tags. Failures wrap ErrValidation:
//
//	var req CreateRoleRequest
//	if !httputil.ParseAndValidateOrError(w, r, &req) {
//		return
//	}
//
// RequestIDMiddleware and LoggingMiddleware put the request ID and a logger
// into the request context for observability.FromContext.
package httputil
