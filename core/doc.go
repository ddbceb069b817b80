// Package core centralizes the domain contracts shared by every other
// taskmesh package: the error taxonomy used for retry decisions, the Task
// record with its status state machine, the domain payload types exchanged
// between the leader and its workers, and the Recorder boundary towards the
// persistence collaborator.
//
// Keeping only contracts here prevents higher level packages (queue, registry,
// agents) from depending on each other's concrete types - they all meet in
// core.
package core
