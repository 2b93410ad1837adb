package testutil_test

import (
	"testing"

	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/domain/store/storetest"
	"github.com/turtacn/SMARTSexplore/internal/testutil"
)

func TestMemStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return testutil.NewMemStore() })
}
