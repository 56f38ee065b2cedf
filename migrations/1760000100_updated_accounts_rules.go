package migrations

import (
	"circle-system/internal/repository"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Owners may read and edit their own account; everything else goes through the API.
func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId(repository.CollectionAccounts)
		if err != nil {
			return err
		}

		own := "id = @request.auth.id"
		collection.ViewRule = types.Pointer(own)
		collection.UpdateRule = types.Pointer(own)
		collection.ListRule = types.Pointer(own)
		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId(repository.CollectionAccounts)
		if err != nil {
			return err
		}

		collection.ViewRule = nil
		collection.UpdateRule = nil
		collection.ListRule = nil
		return app.Save(collection)
	})
}
