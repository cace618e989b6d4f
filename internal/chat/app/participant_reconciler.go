package app

import (
	"context"
	"fmt"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg"

	"golang.org/x/sync/errgroup"
)

// ParticipantReconciler resolves participant ids against the directory. Read only, it never edits the conversation.
type ParticipantReconciler struct {
	repo  repository.DirectoryRepository
	cache *DirectoryCache
	limit int
}

// NewParticipantReconciler limit is the store's membership query cardinality
func NewParticipantReconciler(repo repository.DirectoryRepository, cache *DirectoryCache, limit int) *ParticipantReconciler {
	return &ParticipantReconciler{repo: repo, cache: cache, limit: limit}
}

// Reconcile split ids into entries found in the directory and ids without one.
// Both results follow the request order. Every found entry is cached.
func (r *ParticipantReconciler) Reconcile(ctx context.Context, participantIDs []string) ([]domain.DirectoryEntry, []string, error) {
	ids := pkg.UniqueTrimmed(participantIDs)
	if len(ids) == 0 {
		return nil, nil, nil
	}

	chunks := pkg.Chunk(ids, r.limit)
	results := make([][]domain.DirectoryEntry, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			entries, err := r.repo.FindByIDs(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("%w: resolve participants: %w", domain.ErrPersistence, err)
	}

	byID := make(map[string]domain.DirectoryEntry, len(ids))
	for _, entries := range results {
		for _, e := range entries {
			byID[e.ID] = e
		}
	}

	found := make([]domain.DirectoryEntry, 0, len(byID))
	var missing []string
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		found = append(found, e)
		if r.cache != nil {
			r.cache.Put(id, e)
		}
	}
	return found, missing, nil
}
