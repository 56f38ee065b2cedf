package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"circle-system/internal/status"
	"circle-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

// runStoreSuite exercises the behavior every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("hash insert and lookup", func(t *testing.T) {
		s := newStore(t)
		ref := &models.HashRef{
			Namespace:  models.NamespaceApplication,
			HashID:     "aB3dE5fG7hJ9kL1mN3pQ",
			InternalID: "internal-1",
			Routing:    models.Routing{UserID: "u1", EventID: "ev1"},
		}
		require.NoError(t, s.InsertHash(ctx, ref))

		got, err := s.FindHash(ctx, models.NamespaceApplication, ref.HashID)
		require.NoError(t, err)
		assert.Equal(t, "internal-1", got.InternalID)
		assert.Equal(t, "ev1", got.Routing.EventID)

		_, err = s.FindHash(ctx, models.NamespacePayment, ref.HashID)
		assert.ErrorIs(t, err, status.ErrNotFound)

		dup := *ref
		dup.InternalID = "internal-2"
		assert.ErrorIs(t, s.InsertHash(ctx, &dup), status.ErrHashTaken)
	})

	t.Run("hash listing filters by routing", func(t *testing.T) {
		s := newStore(t)
		for i, ev := range []string{"ev1", "ev1", "ev2"} {
			require.NoError(t, s.InsertHash(ctx, &models.HashRef{
				Namespace:  models.NamespaceTicket,
				HashID:     "hash" + string(rune('a'+i)),
				InternalID: "t" + string(rune('a'+i)),
				Routing:    models.Routing{EventID: ev},
			}))
		}

		refs, err := s.ListHashes(ctx, models.NamespaceTicket, models.Routing{EventID: "ev1"})
		require.NoError(t, err)
		assert.Len(t, refs, 2)

		all, err := s.ListHashes(ctx, models.NamespaceTicket, models.Routing{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.ListHashes(ctx, models.NamespaceApplication, models.Routing{})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("blocking application", func(t *testing.T) {
		s := newStore(t)
		app := &models.Application{
			UserID:        "u1",
			EventID:       "ev1",
			SpaceID:       "sp1",
			Circle:        models.Circle{Name: "Night Owls", NameReading: "naito ouruzu"},
			PaymentMethod: models.MethodOnline,
		}
		require.NoError(t, s.CreateApplication(ctx, app))
		require.NotEmpty(t, app.ID)

		found, err := s.FindBlockingApplication(ctx, "ev1", "u1")
		require.NoError(t, err)
		assert.Equal(t, app.ID, found.ID)
		assert.Equal(t, "Night Owls", found.Circle.Name)

		app.Status = models.ApplicationCanceled
		require.NoError(t, s.UpdateApplication(ctx, app))

		_, err = s.FindBlockingApplication(ctx, "ev1", "u1")
		assert.ErrorIs(t, err, status.ErrNotFound)
	})

	t.Run("payment round trip keeps nil voucher amount", func(t *testing.T) {
		s := newStore(t)
		p := &models.Payment{
			UserID:           "u1",
			Method:           models.MethodBankTransfer,
			PaymentAmount:    5000,
			TotalAmount:      5000,
			ApplicationID:    "ap1",
			BankTransferCode: "12345678",
		}
		require.NoError(t, s.CreatePayment(ctx, p))

		got, err := s.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, got.VoucherAmount)
		assert.Equal(t, int64(5000), got.PaymentAmount)
		assert.Equal(t, models.PaymentPending, got.Status)

		byCode, err := s.FindPaymentByTransferCode(ctx, "12345678")
		require.NoError(t, err)
		assert.Equal(t, p.ID, byCode.ID)

		_, err = s.FindPaymentByTransferCode(ctx, "")
		assert.ErrorIs(t, err, status.ErrNotFound)

		got.VoucherAmount = int64Ptr(0)
		got.Status = models.PaymentPaid
		require.NoError(t, s.UpdatePayment(ctx, got))

		again, err := s.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, again.VoucherAmount)
		assert.Equal(t, int64(0), *again.VoucherAmount)
		assert.Equal(t, models.PaymentPaid, again.Status)

		byOwner, err := s.FindPaymentByOwner(ctx, models.KindApplication, "ap1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, byOwner.ID)

		_, err = s.FindPaymentByOwner(ctx, models.KindTicket, "ap1")
		assert.ErrorIs(t, err, status.ErrNotFound)

		list, err := s.ListPaymentsByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("transfer codes are unique", func(t *testing.T) {
		s := newStore(t)
		first := &models.Payment{UserID: "u1", Method: models.MethodBankTransfer, PaymentAmount: 100, TotalAmount: 100, TicketID: "t1", BankTransferCode: "12345678"}
		require.NoError(t, s.CreatePayment(ctx, first))

		dup := &models.Payment{UserID: "u2", Method: models.MethodBankTransfer, PaymentAmount: 200, TotalAmount: 200, TicketID: "t2", BankTransferCode: "12345678"}
		assert.ErrorIs(t, s.CreatePayment(ctx, dup), status.ErrTransferCodeTaken)

		got, err := s.FindPaymentByTransferCode(ctx, "12345678")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		// payments without a code never collide
		require.NoError(t, s.CreatePayment(ctx, &models.Payment{UserID: "u1", Method: models.MethodOnline, PaymentAmount: 100, TotalAmount: 100, TicketID: "t3"}))
		require.NoError(t, s.CreatePayment(ctx, &models.Payment{UserID: "u1", Method: models.MethodOnline, PaymentAmount: 100, TotalAmount: 100, TicketID: "t4"}))
	})

	t.Run("close checkout reports the first closer", func(t *testing.T) {
		s := newStore(t)
		p := &models.Payment{UserID: "u1", Method: models.MethodOnline, PaymentAmount: 100, TotalAmount: 100, TicketID: "t1"}
		require.NoError(t, s.CreatePayment(ctx, p))

		closed, err := s.CloseCheckout(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, closed)

		closed, err = s.CloseCheckout(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, closed)

		_, err = s.CloseCheckout(ctx, "missing")
		assert.ErrorIs(t, err, status.ErrNotFound)
	})

	t.Run("voucher redemption honors the limit", func(t *testing.T) {
		s := newStore(t)
		v := &models.Voucher{
			Amount:         int64Ptr(1000),
			TargetType:     models.TargetEvent,
			TargetID:       "ev1",
			UsedCountLimit: intPtr(1),
		}
		require.NoError(t, s.CreateVoucher(ctx, v))

		require.NoError(t, s.RedeemVoucher(ctx, v.ID))
		assert.ErrorIs(t, s.RedeemVoucher(ctx, v.ID), status.ErrVoucherExhausted)

		got, err := s.GetVoucher(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.UsedCount)
		require.NotNil(t, got.Amount)
		assert.Equal(t, int64(1000), *got.Amount)

		require.NoError(t, s.ReleaseVoucher(ctx, v.ID))
		require.NoError(t, s.ReleaseVoucher(ctx, v.ID))
		got, err = s.GetVoucher(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.UsedCount)
		require.NoError(t, s.RedeemVoucher(ctx, v.ID))
		assert.ErrorIs(t, s.ReleaseVoucher(ctx, "missing"), status.ErrNotFound)

		free := &models.Voucher{TargetType: models.TargetTicketStore, TargetID: "s1"}
		require.NoError(t, s.CreateVoucher(ctx, free))
		for i := 0; i < 3; i++ {
			require.NoError(t, s.RedeemVoucher(ctx, free.ID))
		}
		got, err = s.GetVoucher(ctx, free.ID)
		require.NoError(t, err)
		assert.True(t, got.FullCoverage())
		assert.Nil(t, got.UsedCountLimit)
	})

	t.Run("ticket claim is first writer wins", func(t *testing.T) {
		s := newStore(t)
		tk := &models.Ticket{StoreID: "s1", TypeID: "tt1", PaymentMethod: models.MethodOnline, CreatedUserID: "u1"}
		require.NoError(t, s.CreateTicket(ctx, tk))
		require.NoError(t, s.CreateTicketUser(ctx, &models.TicketUser{TicketID: tk.ID, TicketHashID: "h1"}))

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i, user := range []string{"u2", "u3"} {
			wg.Add(1)
			go func(i int, user string) {
				defer wg.Done()
				_, results[i] = s.ClaimTicketUser(ctx, tk.ID, user, time.Now())
			}(i, user)
		}
		wg.Wait()

		var wins, losses int
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, status.ErrTicketAlreadyClaimed):
				losses++
			default:
				t.Fatalf("unexpected claim error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, losses)

		holder, err := s.GetTicketUser(ctx, tk.ID)
		require.NoError(t, err)

		same, err := s.ClaimTicketUser(ctx, tk.ID, holder.UsableUserID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, holder.UsableUserID, same.UsableUserID)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")

		var appID string
		err := s.RunInTx(ctx, func(tx Store) error {
			a := &models.Application{
				UserID: "u1", EventID: "ev1", SpaceID: "sp1",
				Circle:        models.Circle{Name: "c", NameReading: "c"},
				PaymentMethod: models.MethodOnline,
			}
			if err := tx.CreateApplication(ctx, a); err != nil {
				return err
			}
			appID = a.ID
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.GetApplication(ctx, appID)
		assert.ErrorIs(t, err, status.ErrNotFound)
	})

	t.Run("accounts", func(t *testing.T) {
		s := newStore(t)
		acc, err := s.CreateAccount(ctx, models.Credentials{Email: "Mika@Example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.Equal(t, "mika@example.com", acc.Email)

		_, err = s.CreateAccount(ctx, models.Credentials{Email: "mika@example.com", Password: "another-pass"})
		assert.ErrorIs(t, err, status.ErrConflict)

		_, err = s.CreateAccount(ctx, models.Credentials{Email: "short@example.com", Password: "123"})
		assert.ErrorIs(t, err, status.ErrInvalidArgument)

		updated, err := s.UpdateProfile(ctx, acc.ID, models.Profile{Gender: "female"})
		require.NoError(t, err)
		assert.Equal(t, "female", updated.Profile.Gender)

		updated, err = s.UpdateProfile(ctx, acc.ID, models.Profile{DisplayName: "mika"})
		require.NoError(t, err)
		assert.Equal(t, "female", updated.Profile.Gender)
		assert.Equal(t, "mika", updated.Profile.DisplayName)

		_, err = s.GetAccount(ctx, "missing")
		assert.ErrorIs(t, err, status.ErrNotFound)
	})
}
