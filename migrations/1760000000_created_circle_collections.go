package migrations

import (
	"circle-system/internal/repository"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		return repository.EnsureCollections(app)
	}, func(app core.App) error {
		return repository.DropCollections(app)
	})
}
