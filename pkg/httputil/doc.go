// Package httputil provides HTTP helpers shared by the studiodesk handlers:
// JSON responses, query and path parsing, request ids and middleware
// chaining.
//
// Responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "invalid limit")
//	httputil.WriteForbidden(w, "insufficient role")
//
// Request parsing:
//
//	var req CreateEventRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
package httputil
