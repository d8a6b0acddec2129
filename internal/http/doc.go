// Package http exposes the groupsync REST API and the realtime websocket endpoint.
//
// Every REST route requires an `Authorization: Bearer <jwt>` header and exchanges
// camelCase JSON:
//   - GET/POST /groups, GET/PATCH/DELETE /groups/{groupID}: groups the caller
//     administers or belongs to. Renames are broadcast to the group room.
//   - GET/POST /groups/{groupID}/members, DELETE /groups/{groupID}/members/{userID},
//     PUT /groups/{groupID}/members/{userID}/active-schedule: membership management.
//     The active-schedule body is {"scheduleId": "..."}; null clears it.
//   - GET /groups/{groupID}/availability?start&end&step&mode&min_people: the group's
//     availability report. Validation failures answer 400 with a field map.
//   - GET/POST /schedules, GET/DELETE /schedules/{scheduleID},
//     GET/POST /schedules/{scheduleID}/events,
//     PUT/DELETE /schedules/{scheduleID}/events/{eventID}: personal schedules.
//
// GET /ws/{namespace}/{objectID}/ upgrades to a websocket subscribed to the room
// (`groups` or `schedules`). The token travels in the `token` query parameter; a
// missing or invalid token closes with 4401, a refused room with 4403.
//
// GET /metrics serves Prometheus metrics and GET /healthz reports liveness.
package http
