package hashid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"circle-system/internal/status"
	"circle-system/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu    sync.Mutex
	refs  map[string]*models.HashRef
	finds int
}

func newMapStore() *mapStore {
	return &mapStore{refs: make(map[string]*models.HashRef)}
}

func (m *mapStore) InsertHash(ctx context.Context, ref *models.HashRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(ref.Namespace) + "/" + ref.HashID
	if _, ok := m.refs[key]; ok {
		return status.ErrHashTaken
	}
	cp := *ref
	m.refs[key] = &cp
	return nil
}

func (m *mapStore) FindHash(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	ref, ok := m.refs[string(ns)+"/"+hashID]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", status.ErrNotFound, ns, hashID)
	}
	cp := *ref
	return &cp, nil
}

func (m *mapStore) ListHashes(ctx context.Context, ns models.Namespace, filter models.Routing) ([]*models.HashRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.HashRef
	for _, ref := range m.refs {
		if ref.Namespace == ns && MatchRouting(ref.Routing, filter) {
			cp := *ref
			out = append(out, &cp)
		}
	}
	return out, nil
}

func sequence(ids ...string) func(int) (string, error) {
	i := 0
	return func(int) (string, error) {
		id := ids[i%len(ids)]
		i++
		return id, nil
	}
}

func TestMintThenResolve_EachNamespace(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), 0)

	for _, ns := range []models.Namespace{models.NamespaceApplication, models.NamespacePayment, models.NamespaceTicket} {
		t.Run(string(ns), func(t *testing.T) {
			hashID, err := svc.Mint(ctx, ns, "internal-"+string(ns), models.Routing{EventID: "ev1"})
			require.NoError(t, err)
			assert.Len(t, hashID, DefaultLength)
			assert.NotEqual(t, "internal-"+string(ns), hashID)

			for i := 0; i < 3; i++ {
				ref, err := svc.Resolve(ctx, ns, hashID)
				require.NoError(t, err)
				assert.Equal(t, "internal-"+string(ns), ref.InternalID)
				assert.Equal(t, "ev1", ref.Routing.EventID)
			}
		})
	}
}

func TestResolve_NeverMinted(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), 0)

	for _, ns := range models.Namespaces {
		t.Run(string(ns), func(t *testing.T) {
			_, err := svc.Resolve(ctx, ns, "nope")
			assert.ErrorIs(t, err, status.ErrNotFound)

			_, err = svc.Resolve(ctx, ns, "")
			assert.ErrorIs(t, err, status.ErrNotFound)
		})
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), 0)
	svc.generate = sequence("SAMEHASH")

	_, err := svc.Mint(ctx, models.NamespaceApplication, "app1", models.Routing{})
	require.NoError(t, err)
	_, err = svc.Mint(ctx, models.NamespacePayment, "pay1", models.Routing{})
	require.NoError(t, err)

	app, err := svc.Resolve(ctx, models.NamespaceApplication, "SAMEHASH")
	require.NoError(t, err)
	pay, err := svc.Resolve(ctx, models.NamespacePayment, "SAMEHASH")
	require.NoError(t, err)
	assert.Equal(t, "app1", app.InternalID)
	assert.Equal(t, "pay1", pay.InternalID)

	_, err = svc.Resolve(ctx, models.NamespaceTicket, "SAMEHASH")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestMint_RetriesOnCollisionAndInternalID(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	svc := NewService(store, 0)
	svc.generate = sequence("taken", "app1", "fresh")

	require.NoError(t, store.InsertHash(ctx, &models.HashRef{Namespace: models.NamespaceApplication, HashID: "taken", InternalID: "x"}))

	hashID, err := svc.Mint(ctx, models.NamespaceApplication, "app1", models.Routing{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", hashID)
}

func TestMint_GivesUpAfterAttempts(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	svc := NewService(store, 0)
	svc.generate = sequence("taken")

	require.NoError(t, store.InsertHash(ctx, &models.HashRef{Namespace: models.NamespaceTicket, HashID: "taken", InternalID: "x"}))

	_, err := svc.Mint(ctx, models.NamespaceTicket, "t1", models.Routing{})
	assert.ErrorIs(t, err, status.ErrHashTaken)
}

func TestMint_InvalidInput(t *testing.T) {
	svc := NewService(newMapStore(), 0)

	_, err := svc.Mint(context.Background(), "orders", "x", models.Routing{})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	_, err = svc.Mint(context.Background(), models.NamespacePayment, "", models.Routing{})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestRegister_VoucherCodeIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), 0)

	require.NoError(t, svc.Register(ctx, models.NamespaceVoucherCode, " summer-26 ", "v1", models.Routing{TargetType: models.TargetEvent}))

	ref, err := svc.Resolve(ctx, models.NamespaceVoucherCode, "SUMMER-26")
	require.NoError(t, err)
	assert.Equal(t, "v1", ref.InternalID)

	err = svc.Register(ctx, models.NamespaceVoucherCode, "Summer-26", "v2", models.Routing{})
	assert.ErrorIs(t, err, status.ErrConflict)

	err = svc.Register(ctx, models.NamespaceVoucherCode, "V3", "V3", models.Routing{})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestList_FiltersByRouting(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), 0)

	_, err := svc.Mint(ctx, models.NamespaceApplication, "a1", models.Routing{EventID: "ev1", SpaceID: "s1"})
	require.NoError(t, err)
	_, err = svc.Mint(ctx, models.NamespaceApplication, "a2", models.Routing{EventID: "ev1", SpaceID: "s2"})
	require.NoError(t, err)
	_, err = svc.Mint(ctx, models.NamespaceApplication, "a3", models.Routing{EventID: "ev2"})
	require.NoError(t, err)

	refs, err := svc.List(ctx, models.NamespaceApplication, models.Routing{EventID: "ev1"})
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	refs, err = svc.List(ctx, models.NamespaceApplication, models.Routing{EventID: "ev1", SpaceID: "s2"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "a2", refs[0].InternalID)
}

func TestCachedStore_MissThenHit(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	ref := &models.HashRef{
		Namespace:  models.NamespacePayment,
		HashID:     "h1",
		InternalID: "pay1",
		Created:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertHash(ctx, ref))

	db, mock := redismock.NewClientMock()
	cached := NewCachedStore(store, db, 0)

	payload, err := json.Marshal(ref)
	require.NoError(t, err)

	mock.ExpectGet("hash:payment:h1").RedisNil()
	mock.ExpectSet("hash:payment:h1", payload, 0).SetVal("OK")

	got, err := cached.FindHash(ctx, models.NamespacePayment, "h1")
	require.NoError(t, err)
	assert.Equal(t, "pay1", got.InternalID)
	assert.Equal(t, 1, store.finds)

	mock.ExpectGet("hash:payment:h1").SetVal(string(payload))

	got, err = cached.FindHash(ctx, models.NamespacePayment, "h1")
	require.NoError(t, err)
	assert.Equal(t, "pay1", got.InternalID)
	assert.Equal(t, 1, store.finds, "second read served from cache")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cached := NewCachedStore(newMapStore(), db, time.Hour)

	mock.ExpectGet("hash:ticket:missing").RedisNil()

	_, err := cached.FindHash(context.Background(), models.NamespaceTicket, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStore_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	require.NoError(t, store.InsertHash(ctx, &models.HashRef{Namespace: models.NamespaceTicket, HashID: "t", InternalID: "ticket1"}))

	db, mock := redismock.NewClientMock()
	cached := NewCachedStore(store, db, 0)

	mock.ExpectGet("hash:ticket:t").SetErr(errors.New("connection refused"))
	mock.Regexp().ExpectSet("hash:ticket:t", `.*`, 0).SetErr(errors.New("connection refused"))

	ref, err := cached.FindHash(ctx, models.NamespaceTicket, "t")
	require.NoError(t, err)
	assert.Equal(t, "ticket1", ref.InternalID)
}

func TestMatchRouting(t *testing.T) {
	r := models.Routing{EventID: "ev1", UserID: "u1"}
	assert.True(t, MatchRouting(r, models.Routing{}))
	assert.True(t, MatchRouting(r, models.Routing{UserID: "u1"}))
	assert.False(t, MatchRouting(r, models.Routing{UserID: "u2"}))
	assert.False(t, MatchRouting(r, models.Routing{StoreID: "s1"}))
}
