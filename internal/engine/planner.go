package engine

import (
	"fmt"

	"github.com/mhollis/dedupd/internal/storage"
)

// PlanDeletion validates a proposed deletion against its group and returns
// the approved identities in group member order. It performs no I/O; the
// caller passes the approved list to the backend's delete operation one file
// at a time.
//
// A plan is rejected if the group has fewer than two members, if any
// requested file is not a member, or if the request covers every member.
// At least one copy must always survive.
func PlanDeletion(group DuplicateGroup, toDelete []storage.FileID) ([]storage.FileID, error) {
	if len(group.Members) < 2 {
		return nil, ErrEmptyGroup
	}

	memberSet := make(map[storage.FileID]bool, len(group.Members))
	for _, m := range group.Members {
		memberSet[m.ID] = true
	}

	requested := make(map[storage.FileID]bool, len(toDelete))
	for _, id := range toDelete {
		if !memberSet[id] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMember, id)
		}
		requested[id] = true
	}

	if len(requested) == len(group.Members) {
		return nil, ErrUnsafeDeletion
	}

	approved := make([]storage.FileID, 0, len(requested))
	for _, m := range group.Members {
		if requested[m.ID] {
			approved = append(approved, m.ID)
		}
	}
	return approved, nil
}
