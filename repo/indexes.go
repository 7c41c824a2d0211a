package repo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/open-edge-platform/geti-persistence/internal/log"
)

// Repositories are constructed per request, so index creation must not
// be reissued on every construction. Creation is memoized process-wide
// per collection name; concurrent constructions for the same collection
// share one sync.Once and issue a single createIndexes command.
var indexProvisioning sync.Map // collection name -> *sync.Once

func ensureIndexes(coll *mongo.Collection, name string, indexes []mongo.IndexModel) {
	once, _ := indexProvisioning.LoadOrStore(name, &sync.Once{})
	once.(*sync.Once).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
			// Index creation is attempted once per process lifetime;
			// a failure degrades query performance, not correctness.
			logger := log.For("repo")
			logger.Warn().Err(err).Str("collection", name).
				Msg("index creation failed")
		}
	})
}

// resetIndexProvisioning clears the memoization. Only tests use it.
func resetIndexProvisioning() {
	indexProvisioning.Range(func(key, _ any) bool {
		indexProvisioning.Delete(key)
		return true
	})
}
