// Package tracker is the task service used by the HTTP API and the MCP server.
//
// Each method takes the caller's auth.Identity as an argument. Operations on a
// single task load it first and let the task package decide: a missing task is
// a NotFoundError, somebody else's task is a ForbiddenError. Store failures are
// wrapped in task.StorageError and logged.
package tracker
