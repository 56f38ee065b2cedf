package migrations

import (
	"circle-system/internal/repository"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Bank-transfer codes identify a payment on their own, so they must not repeat.
func init() {
	m.Register(func(app core.App) error {
		return repository.UniqueTransferCodes(app)
	}, func(app core.App) error {
		return repository.PlainTransferCodes(app)
	})
}
