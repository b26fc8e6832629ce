// Package mcp exposes the task service as Model Context Protocol tools.
//
// The server speaks MCP over stdio and acts as a single user: the identity
// is resolved from a bearer token once, when "taskd mcp" starts, and passed
// to the task service on every call.
//
// Tools:
//
//	create_task  title, description?, deadline?
//	get_task     id
//	list_tasks   state?, search?, deadline_before?
//	update_task  id, title?, description?, state?, deadline?
//	delete_task  id
//
// Results are JSON text. Failures are tool errors whose text starts with the
// error kind, for example "forbidden: task 3 is completed".
//
// update_task only changes the fields it is given. It is rejected with a
// "conflict:" error when the task was modified between the tool reading it
// and writing it back.
package mcp
