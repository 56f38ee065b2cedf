package hashid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"circle-system/internal/status"
	"circle-system/models"
	"circle-system/utils"
)

const (
	DefaultLength   = 20
	maxMintAttempts = 5
)

// Store persists lookup records. InsertHash must fail with status.ErrHashTaken
// when the hash id already exists in the namespace, and FindHash with
// status.ErrNotFound when it does not.
type Store interface {
	InsertHash(ctx context.Context, ref *models.HashRef) error
	FindHash(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error)
	ListHashes(ctx context.Context, ns models.Namespace, filter models.Routing) ([]*models.HashRef, error)
}

// Service is the only place that creates and resolves public hash ids.
type Service struct {
	store    Store
	length   int
	generate func(n int) (string, error)
	now      func() time.Time
}

func NewService(store Store, length int) *Service {
	if length <= 0 {
		length = DefaultLength
	}
	return &Service{
		store:    store,
		length:   length,
		generate: utils.GenerateBase62,
		now:      time.Now,
	}
}

// WithStore returns a copy bound to store, typically a transaction.
func (s *Service) WithStore(store Store) *Service {
	cp := *s
	cp.store = store
	return &cp
}

// Mint creates a fresh opaque id for internalID in ns and writes its lookup record.
func (s *Service) Mint(ctx context.Context, ns models.Namespace, internalID string, routing models.Routing) (string, error) {
	if !ns.Valid() {
		return "", status.Invalid("namespace", string(ns))
	}
	if internalID == "" {
		return "", status.Invalid("internal_id", "required")
	}

	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		hashID, err := s.generate(s.length)
		if err != nil {
			return "", fmt.Errorf("Mint: generate: %w", err)
		}
		if hashID == internalID {
			continue
		}

		err = s.store.InsertHash(ctx, &models.HashRef{
			Namespace:  ns,
			HashID:     hashID,
			InternalID: internalID,
			Routing:    routing,
			Created:    s.now(),
		})
		switch {
		case err == nil:
			return hashID, nil
		case errors.Is(err, status.ErrHashTaken):
			continue
		default:
			return "", fmt.Errorf("Mint: insert %s: %w", ns, err)
		}
	}
	return "", fmt.Errorf("Mint: %s: %d attempts collided: %w", ns, maxMintAttempts, status.ErrHashTaken)
}

// Register writes a caller chosen token, used for human-entered voucher codes.
func (s *Service) Register(ctx context.Context, ns models.Namespace, token, internalID string, routing models.Routing) error {
	if !ns.Valid() {
		return status.Invalid("namespace", string(ns))
	}
	token = Normalize(ns, token)
	switch {
	case token == "":
		return status.Invalid("hash_id", "required")
	case internalID == "":
		return status.Invalid("internal_id", "required")
	case token == internalID:
		return status.Invalid("hash_id", "must differ from the internal id")
	}

	return s.store.InsertHash(ctx, &models.HashRef{
		Namespace:  ns,
		HashID:     token,
		InternalID: internalID,
		Routing:    routing,
		Created:    s.now(),
	})
}

// Resolve returns the lookup record for hashID in ns.
func (s *Service) Resolve(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error) {
	if !ns.Valid() {
		return nil, status.Invalid("namespace", string(ns))
	}
	hashID = Normalize(ns, hashID)
	if hashID == "" {
		return nil, fmt.Errorf("%w: %s hash id is empty", status.ErrNotFound, ns)
	}
	return s.store.FindHash(ctx, ns, hashID)
}

// List returns the lookup records of ns whose routing matches every non-empty field of filter.
func (s *Service) List(ctx context.Context, ns models.Namespace, filter models.Routing) ([]*models.HashRef, error) {
	if !ns.Valid() {
		return nil, status.Invalid("namespace", string(ns))
	}
	return s.store.ListHashes(ctx, ns, filter)
}

// Normalize canonicalizes a token. Voucher codes are typed by people and are
// case-insensitive; generated ids are compared verbatim.
func Normalize(ns models.Namespace, token string) string {
	token = strings.TrimSpace(token)
	if ns == models.NamespaceVoucherCode {
		return strings.ToUpper(token)
	}
	return token
}

// MatchRouting reports whether r matches every non-empty field of filter.
func MatchRouting(r, filter models.Routing) bool {
	pairs := [][2]string{
		{filter.UserID, r.UserID},
		{filter.EventID, r.EventID},
		{filter.OrganizationID, r.OrganizationID},
		{filter.SpaceID, r.SpaceID},
		{filter.StoreID, r.StoreID},
		{filter.TypeID, r.TypeID},
		{string(filter.TargetType), string(r.TargetType)},
	}
	for _, p := range pairs {
		if p[0] != "" && p[0] != p[1] {
			return false
		}
	}
	return true
}
