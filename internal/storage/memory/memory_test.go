package memory

import (
	"testing"

	"expenses/internal/storage"
	"expenses/internal/storage/storetest"
)

var _ storage.Repository = (*Store)(nil)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) storage.Repository { return New() })
}
