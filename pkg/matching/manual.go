package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
)

// MinManualSearchLength is the shortest text a manual search runs for
const MinManualSearchLength = 2

// ManualSearch runs a user-typed search for entities of the given kind. Text shorter than
// two characters returns nothing.
func ManualSearch(ctx context.Context, entities store.EntityStore, kind models.EntityKind, text string) ([]models.MatchCandidate, error) {
	text = strings.TrimSpace(text)
	if runeLen(text) < MinManualSearchLength {
		return nil, nil
	}

	var (
		found []models.Entity
		err   error
	)
	if kind == models.EntityKindCompany {
		found, err = entities.FindCompaniesByNameSubstring(ctx, text)
		found = ectolinq.Filter(found, func(e models.Entity) bool { return e.Category != store.SkipCategory })
	} else {
		found, err = entities.FindEntitiesByNameSubstring(ctx, text)
	}
	if err != nil {
		return nil, err
	}

	return candidates(found, models.MatchTypeManualSearch, fmt.Sprintf("Search: %q", text)), nil
}
