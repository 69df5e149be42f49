// Package service implements the save and load operations on top of the
// codec, the slot store and the task orchestrator.
//
//   - Writer: captures live world state into a slot buffer
//   - Reconciler: decodes a slot buffer and applies it to a world in two
//     passes, materialize then apply
//   - Manager: the operation API (RequestSave, RequestLoad, Cancel,
//     ListSlots, DeleteSlot) plus autosave, save on exit and level
//     streaming
//
// Writer.Capture and every Plan method touch live objects and must run on
// the host's world thread. The Manager arranges this through the
// orchestrator's dispatcher.
package service
