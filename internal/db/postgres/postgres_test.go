package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/apprelay/apprelay/internal/store"
	"github.com/apprelay/apprelay/internal/store/storetest"
)

// Set APPRELAY_TEST_POSTGRES_DSN to a disposable database to run these.
func TestStore(t *testing.T) {
	dsn := os.Getenv("APPRELAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("APPRELAY_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()
		d, err := Open(ctx, dsn)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.db.ExecContext(ctx, `TRUNCATE builds, feedbacks, monitored_repositories, app_settings`); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = d.Close() })
		return d
	})
}
