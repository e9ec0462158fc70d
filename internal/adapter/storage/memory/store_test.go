package memory

import (
	"testing"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/adapter/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}
