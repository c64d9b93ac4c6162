package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ownersMu sync.Mutex
	Owners   []interface{}
)

// IdentifierAcquireNewID hands out the lowest free slot to owner.
func IdentifierAcquireNewID(owner interface{}) uint32 {
	ownersMu.Lock()
	defer ownersMu.Unlock()

	if len(Owners) == 0 {
		Owners = make([]interface{}, 0, 100)
	}
	for i := range Owners {
		// Existing free spot. Take it.
		if Owners[i] == nil {
			Owners[i] = owner
			return uint32(i)
		}
	}

	// No free slot; the new id is the old length.
	Owners = append(Owners, owner)
	return uint32(len(Owners) - 1)
}

func IdentifierReleaseID(id uint32) error {
	ownersMu.Lock()
	defer ownersMu.Unlock()

	if len(Owners) == 0 {
		return fmt.Errorf("identifier_release_id called before initialization. identifier_acquire_new_id should have been called first. Nothing was done")
	}
	if int(id) >= len(Owners) {
		return fmt.Errorf("identifier_release_id: id '%d' out of range (max=%d). Nothing was done", id, len(Owners))
	}

	// Just zero out the entry, making it available for use.
	Owners[id] = nil
	return nil
}

// IdentifierOwner returns the owner registered under id, or nil.
func IdentifierOwner(id uint32) interface{} {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	if int(id) >= len(Owners) {
		return nil
	}
	return Owners[id]
}

// GenerateName builds a unique debug name for resources created without one.
func GenerateName(kind string) string {
	return kind + "_" + uuid.New().String()
}
