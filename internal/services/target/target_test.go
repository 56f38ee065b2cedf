package target

import (
	"context"
	"errors"
	"testing"

	"circle-system/internal/repository"
	"circle-system/internal/status"
	"circle-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	sources []string
}

func (c *countingRecorder) RecordIntegrity(source string) {
	c.sources = append(c.sources, source)
}

type fixture struct {
	store  *repository.MemoryStore
	app    *models.Application
	ticket *models.Ticket
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := repository.NewMemoryStore()

	ev := &models.Event{Name: "Spring Market"}
	require.NoError(t, s.CreateEvent(ctx, ev))
	sp := &models.Space{EventID: ev.ID, Name: "A-01", Price: 5000}
	require.NoError(t, s.CreateSpace(ctx, sp))
	app := &models.Application{
		UserID: "u1", EventID: ev.ID, SpaceID: sp.ID, HashID: "appHash",
		Circle:        models.Circle{Name: "Night Owls", NameReading: "naito ouruzu"},
		PaymentMethod: models.MethodOnline,
	}
	require.NoError(t, s.CreateApplication(ctx, app))

	st := &models.TicketStore{Name: "Spring Market Tickets"}
	require.NoError(t, s.CreateTicketStore(ctx, st))
	tt := &models.TicketType{StoreID: st.ID, Name: "Early Entry", Price: 1500}
	require.NoError(t, s.CreateTicketType(ctx, tt))
	tk := &models.Ticket{StoreID: st.ID, TypeID: tt.ID, PaymentMethod: models.MethodOnline, CreatedUserID: "u1", HashID: "tkHash"}
	require.NoError(t, s.CreateTicket(ctx, tk))

	return fixture{store: s, app: app, ticket: tk}
}

func TestResolveTarget(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.store, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		payment *models.Payment
		want    Target
		wantErr error
	}{
		{
			name:    "application",
			payment: &models.Payment{ID: "p1", ApplicationID: f.app.ID},
			want:    Target{Kind: models.KindApplication, DisplayName: "Spring Market / A-01 / Night Owls", HashID: "appHash", Resolved: true},
		},
		{
			name:    "ticket",
			payment: &models.Payment{ID: "p2", TicketID: f.ticket.ID},
			want:    Target{Kind: models.KindTicket, DisplayName: "Spring Market Tickets / Early Entry", HashID: "tkHash", Resolved: true},
		},
		{
			name:    "missing application falls back",
			payment: &models.Payment{ID: "p3", ApplicationID: "gone"},
			want:    Target{Kind: models.KindApplication, DisplayName: FallbackApplicationLabel},
		},
		{
			name:    "missing ticket falls back",
			payment: &models.Payment{ID: "p4", TicketID: "gone"},
			want:    Target{Kind: models.KindTicket, DisplayName: FallbackTicketLabel},
		},
		{
			name:    "no target",
			payment: &models.Payment{ID: "p5"},
			wantErr: status.ErrNotFound,
		},
		{
			name:    "both targets",
			payment: &models.Payment{ID: "p6", ApplicationID: f.app.ID, TicketID: f.ticket.ID},
			wantErr: status.ErrIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveTarget(ctx, tt.payment)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTarget_NoTargetIsIntegrity(t *testing.T) {
	r := NewResolver(repository.NewMemoryStore(), nil)
	_, err := r.ResolveTarget(context.Background(), &models.Payment{ID: "p"})
	assert.ErrorIs(t, err, status.ErrIntegrity)
	assert.Equal(t, status.ErrIntegrity, status.Kind(err))
}

func TestResolveAll_DegradesPerRow(t *testing.T) {
	f := newFixture(t)
	rec := &countingRecorder{}
	r := NewResolver(f.store, rec)

	targets, err := r.ResolveAll(context.Background(), []*models.Payment{
		{ID: "p1", ApplicationID: f.app.ID},
		{ID: "broken"},
		{ID: "p3", TicketID: "deleted"},
	})
	require.NoError(t, err)
	require.Len(t, targets, 3)

	assert.True(t, targets[0].Resolved)
	assert.Equal(t, FallbackSupportLabel, targets[1].DisplayName)
	assert.Equal(t, FallbackTicketLabel, targets[2].DisplayName)
	assert.Equal(t, []string{"payment_target"}, rec.sources)
}

type failingStore struct {
	Store
}

func (failingStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return nil, errors.New("connection reset")
}

func TestResolveAll_PropagatesStoreFailures(t *testing.T) {
	r := NewResolver(failingStore{}, nil)
	_, err := r.ResolveAll(context.Background(), []*models.Payment{{ID: "p1", ApplicationID: "a1"}})
	assert.EqualError(t, err, "connection reset")
}
