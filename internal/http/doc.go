// Package http provides HTTP handlers and middleware for the scheduler API.
//
// The router exposes the following endpoints:
//   - GET /bookings, POST /bookings: list bookings filtered by the `attendees`,
//     `room_id`, `from`, `to` and `include_cancelled` query parameters, or
//     create one from the `bookingRequest` payload defined in booking_handler.go.
//     A conflicting create answers 409 with the conflict report unless the
//     request carries `?force=true`.
//   - GET /bookings/{id}, PUT /bookings/{id}, DELETE /bookings/{id}: single
//     booking management. PUT honours `?force=true` the same way as POST.
//   - POST /bookings/{id}/cancel: marks a booking cancelled.
//   - GET /bookings/{id}/occurrences?from=&to=: expands a booking's instances.
//   - GET /occurrences?from=&to=: lists materialized recurring instances.
//   - POST /conflicts: checks a candidate booking without saving it.
//   - GET /rooms, POST /rooms, PUT /rooms/{id}, DELETE /rooms/{id}: room catalog
//     endpoints exchanging the `roomDTO` payload defined in room_handler.go.
//   - POST /rooms/search: room feasibility filter for a time window, head count
//     and amenity list.
//   - GET /members, POST /members, PUT /members/{id}, DELETE /members/{id}:
//     roster endpoints exchanging the `memberDTO` payload defined in
//     member_handler.go.
//   - POST /availability: availability grid and best-slot recommendations.
//   - GET /healthz: liveness check.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth. Timestamps travel as RFC 3339.
package http
