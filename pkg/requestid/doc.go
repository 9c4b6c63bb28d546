// Package requestid tags inbound HTTP requests with a correlation id.
//
// Middleware reuses a well-formed X-Request-ID header or mints a UUID, echoes
// it in the response and stores it in the request context. The id is also
// attached through logger.ContextWith, so every record logged with the
// request context carries request_id.
package requestid
