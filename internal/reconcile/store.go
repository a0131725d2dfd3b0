package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/types"
)

// Store opens transactions against the durable dataset.
type Store interface {
	// WithTx runs fn inside one read-committed transaction. The transaction
	// commits only when fn returns nil; any error rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of bulk operations the engine issues inside a transaction.
type Tx interface {
	UpsertJob(ctx context.Context, job *types.ScrapeJob) error
	BulkUpsertSellers(ctx context.Context, sellers []types.Seller) error

	// FindExistingByNaturalKey maps each stored link to its product ID.
	FindExistingByNaturalKey(ctx context.Context, links []string) (map[string]uuid.UUID, error)
	// FindExistingIDs returns the subset of ids that are already stored.
	FindExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)

	BulkInsertProducts(ctx context.Context, products []types.Product) (int, error)
	// BulkUpdateProducts overwrites the observed fields and last_seen of
	// stored products. created_at, scrape_job_id, is_removed and removed_at
	// are left alone.
	BulkUpdateProducts(ctx context.Context, products []types.Product) (int, error)

	// MarkMissingAsRemoved flags active products of the given sellers that
	// were not observed by jobID. Both link and id must be unobserved.
	MarkMissingAsRemoved(ctx context.Context, sellerIDs []uuid.UUID, jobID uuid.UUID, observed types.ObservedKeys, removedAt time.Time) (int, error)
	// MarkReappearedAsActive reverts removed products whose link or id was
	// observed, stamping them with jobID.
	MarkReappearedAsActive(ctx context.Context, jobID uuid.UUID, observed types.ObservedKeys) (int, error)
}
