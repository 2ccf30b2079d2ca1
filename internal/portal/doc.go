// Package portal provides the HTTP client and cached service layer for the
// security-services back-office API.
//
// # Overview
//
// The console reads service requests (serial number checks, stolen phone
// checks, call history, MoMo unblocks, refunds and the like) and desk
// counters from the portal backend, and claims or completes requests on the
// operator's behalf.
//
// # Architecture
//
//   - types.go: data structures mirroring the API schema and filters
//   - client.go: net/http client, request signing, error decoding
//   - service.go: cached read access and write-through invalidation
//
// # API Endpoints
//
//   - GET   /api/security-services/requests?status=&service_type=&assigned_to=
//   - GET   /api/security-services/requests/{id}
//   - PATCH /api/security-services/requests/{id}
//   - GET   /api/security-services/stats
//
// Requests carry Accept: application/json, a User-Agent of ssportal/0.1 and,
// when configured, an Authorization: Bearer token. The HTTP client times out
// after 10 seconds.
//
// # Error Handling
//
// Network and decode failures are wrapped with fmt.Errorf. Any 4xx/5xx
// response becomes an *APIError carrying the status and, when the body is a
// {"error":{"code","message"}} envelope, the backend's code and message.
// APIError implements respcache.ResponseError, so the cache holds backend
// rejections briefly while transport failures are always retried. A 401
// matches ErrUnauthorized through errors.Is.
//
// # Caching
//
// Service keys its cache entries as:
//
//   - "requests:<encoded filter>" for lists (default TTL)
//   - "request:<id>" for single requests (default TTL)
//   - "stats" for desk counters (one minute)
//
// UpdateStatus drops the request entry and calls Refresh, which drops every
// list and the stats entry. Errors from UpdateStatus leave the cache intact.
//
// # Timestamps
//
// ParsedCreatedAt and ParsedUpdatedAt accept RFC3339 (with or without
// fractional seconds) and the backend's "2006-01-02 15:04:05" local format.
// Anything else yields the zero time.
package portal
