/*
Package apiclient implements the authenticated HTTP client for the logistics
backend.

The client is shared by the online-path CLI commands and the flush engine's
queued-action replay; both see the same normalized error surface:

  - 401 clears the stored session, fires the registered session-expired
    callback, and returns ErrUnauthorized (check with errors.Is).
  - Other non-2xx responses return *APIError with the status and a message
    extracted from the backend's error envelope, falling back to the HTTP
    status text.
  - Transport failures (DNS, refused, timeout) return the wrapped transport
    error. Callers that need to distinguish "the server said no" from "the
    server was unreachable" use errors.As(*APIError).
  - 204 responses yield no body.

The bearer token is read from the durable session slot on every request
rather than cached, so re-login mid-process takes effect immediately.
*/
package apiclient
