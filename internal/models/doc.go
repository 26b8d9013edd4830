// Package models defines domain entities and persistence interfaces for the muse chat backend.
//
// The only persistent entity is [Message], one turn of a chat transcript.
// Messages implement the [Model] interface providing ID generation, timestamps, and validation.
// The [Repository] interface defines the data access contract implemented in internal/repositories.
package models
