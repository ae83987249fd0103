package signatures

import (
	"context"
	"fmt"
	"strings"

	"github.com/netsentry/netsentry/common/models"
)

// Repository is the slice of storage used to reconcile rules.
type Repository interface {
	ListSignatures(ctx context.Context) ([]models.Signature, error)
	InsertSignature(ctx context.Context, sig *models.Signature) error
}

// Reconcile inserts every rule whose name (case-insensitive) is not yet
// stored. Existing rows are never modified. It returns the inserted names.
func Reconcile(ctx context.Context, repo Repository, rules []models.Signature) ([]string, error) {
	existing, err := repo.ListSignatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[strings.ToLower(s.Name)] = struct{}{}
	}

	var inserted []string
	for _, r := range rules {
		key := strings.ToLower(r.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		sig := r
		if err := repo.InsertSignature(ctx, &sig); err != nil {
			return inserted, fmt.Errorf("insert signature %s: %w", r.Name, err)
		}
		seen[key] = struct{}{}
		inserted = append(inserted, r.Name)
	}
	return inserted, nil
}
