// Package domain contains the client-side business entities for the ListenUp audiobook library.
package domain

import "time"

// SyncState describes where an entity stands relative to the server.
type SyncState string

const (
	// SyncStateSynced means the local record matches the server.
	SyncStateSynced SyncState = "synced"
	// SyncStateNotSynced means a local edit is waiting to be pushed.
	SyncStateNotSynced SyncState = "not_synced"
	// SyncStateSyncing means an upload for this entity is in flight.
	// Guards against duplicate concurrent pushes of the same entity.
	SyncStateSyncing SyncState = "syncing"
	// SyncStateConflict means the server holds a version newer than our
	// last-pushed local edit. Resolved last-write-wins (server wins) for
	// now; kept distinct so a future release can surface it for review.
	SyncStateConflict SyncState = "conflict"
)

// IsValid checks if the state is a recognized value.
func (s SyncState) IsValid() bool {
	switch s {
	case SyncStateSynced, SyncStateNotSynced, SyncStateSyncing, SyncStateConflict:
		return true
	default:
		return false
	}
}

// Syncable provides common fields for entities that participate in synchronization.
// This gets embedded in any domain type that syncs with the server.
type Syncable struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastModified  time.Time  `json:"last_modified"`
	ServerVersion *time.Time `json:"server_version,omitempty"`
	SyncState     SyncState  `json:"sync_state"`
}

// Meta returns the embedded sync fields. The store's generic entity layer
// uses this accessor so it can read and transition sync state without
// knowing the concrete entity type.
func (s *Syncable) Meta() *Syncable {
	return s
}

// MarkLocalEdit records a local mutation: the entity now needs a push.
// Call this whenever the underlying entity changes locally.
func (s *Syncable) MarkLocalEdit() {
	now := time.Now()
	s.UpdatedAt = now
	s.LastModified = now
	s.SyncState = SyncStateNotSynced
}

// MarkSyncing flags an upload in flight for this entity.
func (s *Syncable) MarkSyncing() {
	s.SyncState = SyncStateSyncing
}

// MarkSynced records a confirmed server acknowledgment.
func (s *Syncable) MarkSynced(serverVersion time.Time) {
	s.SyncState = SyncStateSynced
	s.ServerVersion = &serverVersion
}

// MarkConflict records that the server moved past our local edit.
func (s *Syncable) MarkConflict(serverVersion time.Time) {
	s.SyncState = SyncStateConflict
	s.ServerVersion = &serverVersion
}

// NeedsPush reports whether this entity has unsynced local changes.
func (s *Syncable) NeedsPush() bool {
	return s.SyncState == SyncStateNotSynced
}

// NewServerSyncable builds the sync fields for a record that just arrived
// from the server: fresh SYNCED state, server's updatedAt as the version.
func NewServerSyncable(id string, createdAt, serverUpdatedAt time.Time) Syncable {
	return Syncable{
		ID:            id,
		CreatedAt:     createdAt,
		UpdatedAt:     serverUpdatedAt,
		LastModified:  time.Now(),
		ServerVersion: &serverUpdatedAt,
		SyncState:     SyncStateSynced,
	}
}
