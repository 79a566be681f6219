package shared

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLockerRejectsConcurrentHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()
	key := ShipmentImportLockKey("abc")
	require.Equal(t, "lock:shipment-import:abc", key)
	require.Equal(t, "lock:import-order:abc", ImportOrderLockKey("abc"))

	err := locker.WithLock(ctx, key, time.Minute, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, key, time.Minute, func(context.Context) error {
			t.Fatal("inner section must not run")
			return nil
		})
		require.ErrorIs(t, inner, ErrLocked)
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists(key))

	ran := false
	require.NoError(t, locker.WithLock(ctx, key, time.Minute, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	require.Zero(t, ActorID(ctx))
	ctx = ContextWithActor(ctx, Actor{ID: 9, Name: "ops"})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(9), actor.ID)
}

func TestCatalogCoversEveryKey(t *testing.T) {
	b, err := buildCatalog(turkishMessages)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"en", "tr"}, tagStrings(b.Languages()))
	tr := NewMessages("tr")
	for key, want := range turkishMessages {
		if strings.Contains(key, "%") {
			continue
		}
		require.Equal(t, want, tr.printer.Sprintf(key), key)
	}
}

func tagStrings(tags []language.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

func TestMessagesLocalized(t *testing.T) {
	require.Equal(t, "reference not found", NewMessages("en").Sprintf(MsgReferenceNotFound))
	require.Equal(t, "referans bulunamadı", NewMessages("tr").Sprintf(MsgReferenceNotFound))
	require.Equal(t, "price mismatch: file 105.00, order 100.00", NewMessages("xx-invalid").Sprintf(MsgPriceMismatch, "105.00", "100.00"))
}
