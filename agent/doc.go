// Package agent provides the two agent roles of the dispatch mesh.
//
// The Leader decomposes a session into per-category tasks, dispatches them
// through the shared queue and collects validated results under a single
// overall deadline. Workers claim tasks for their category, produce a
// recommendation through a guarded model call and report back. Both embed
// BaseAgent for identity and cooperative start/stop.
package agent
