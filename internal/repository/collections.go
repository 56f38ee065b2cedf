package repository

import (
	"fmt"

	"circle-system/models"

	"github.com/pocketbase/pocketbase/core"
)

const (
	CollectionAccounts     = "accounts"
	CollectionEvents       = "events"
	CollectionSpaces       = "spaces"
	CollectionTicketStores = "ticket_stores"
	CollectionTicketTypes  = "ticket_types"
	CollectionApplications = "applications"
	CollectionTickets      = "tickets"
	CollectionTicketUsers  = "ticket_users"
	CollectionPayments     = "payments"
	CollectionVouchers     = "vouchers"
)

// hashCollections maps every namespace to its own lookup collection.
var hashCollections = map[models.Namespace]string{
	models.NamespaceApplication: "application_hashes",
	models.NamespacePayment:     "payment_hashes",
	models.NamespaceTicket:      "ticket_hashes",
	models.NamespaceVoucherCode: "voucher_codes",
}

func hashCollection(ns models.Namespace) (string, error) {
	name, ok := hashCollections[ns]
	if !ok {
		return "", fmt.Errorf("unknown hash namespace %q", ns)
	}
	return name, nil
}

func timestamps() []core.Field {
	return []core.Field{
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	}
}

func text(name string, required bool) *core.TextField {
	return &core.TextField{Name: name, Required: required, Max: 2000}
}

func integer(name string) *core.NumberField {
	return &core.NumberField{Name: name, OnlyInt: true}
}

func boolean(name string) *core.BoolField {
	return &core.BoolField{Name: name}
}

func date(name string) *core.DateField {
	return &core.DateField{Name: name}
}

type collectionDef struct {
	name    string
	fields  []core.Field
	indexes [][]string
	unique  [][]string

	// uniqueSet holds single text columns unique among non-empty values.
	uniqueSet []string
}

func baseDefinitions() []collectionDef {
	defs := []collectionDef{
		{
			name:   CollectionEvents,
			fields: []core.Field{text("name", true), text("organization_id", false), date("accept_start"), date("accept_end")},
		},
		{
			name:    CollectionSpaces,
			fields:  []core.Field{text("event_id", true), text("name", true), integer("price")},
			indexes: [][]string{{"event_id"}},
		},
		{
			name: CollectionTicketStores,
			fields: []core.Field{
				text("name", true), text("organization_id", false), text("event_id", false),
				date("sale_start"), date("sale_end"),
			},
		},
		{
			name:    CollectionTicketTypes,
			fields:  []core.Field{text("store_id", true), text("name", true), integer("price")},
			indexes: [][]string{{"store_id"}},
		},
		{
			name: CollectionApplications,
			fields: []core.Field{
				text("user_id", true), text("event_id", true), text("space_id", true),
				text("circle_name", true), text("circle_name_reading", true), text("pen_name", false),
				boolean("is_adult"), text("genre_id", false),
				text("overview_description", false), text("overview_total_amount", false),
				text("union_hash_id", false), text("petit_code", false),
				text("payment_method", true), text("product_id", false), text("remarks", false),
				text("hash_id", false), integer("status"),
			},
			indexes: [][]string{{"event_id", "user_id"}},
		},
		{
			name: CollectionTickets,
			fields: []core.Field{
				text("store_id", true), text("type_id", true), text("payment_method", true),
				text("product_id", false), text("user_id", false), text("created_user_id", true),
				boolean("is_standalone"), text("hash_id", false), integer("status"),
			},
			indexes: [][]string{{"store_id"}},
		},
		{
			name: CollectionTicketUsers,
			fields: []core.Field{
				text("ticket_id", true), text("ticket_hash_id", false), text("usable_user_id", false),
				boolean("is_used"), date("used_at"),
			},
			unique: [][]string{{"ticket_id"}},
		},
		{
			name: CollectionPayments,
			fields: []core.Field{
				text("user_id", true), text("payment_method", true),
				integer("payment_amount"), integer("total_amount"),
				integer("voucher_amount"), boolean("has_voucher_amount"), text("voucher_id", false),
				text("application_id", false), text("ticket_id", false),
				text("hash_id", false), text("bank_transfer_code", false),
				text("checkout_session_id", false), text("payment_intent_id", false), text("card_brand", false),
				integer("status"), integer("checkout_status"), date("purchased_at"),
			},
			uniqueSet: []string{"bank_transfer_code"},
			indexes:   [][]string{{"user_id"}, {"checkout_session_id"}, {"application_id"}, {"ticket_id"}},
		},
		{
			name: CollectionVouchers,
			fields: []core.Field{
				integer("amount"), boolean("full_coverage"),
				text("target_type", true), text("target_id", true), text("target_sub_id", false),
				integer("used_count"), integer("used_count_limit"), boolean("limited"),
			},
		},
	}

	for _, ns := range models.Namespaces {
		defs = append(defs, collectionDef{
			name: hashCollections[ns],
			fields: []core.Field{
				text("hash_id", true), text("internal_id", true),
				text("user_id", false), text("event_id", false), text("organization_id", false),
				text("space_id", false), text("store_id", false), text("type_id", false), text("target_type", false),
			},
			unique:  [][]string{{"hash_id"}},
			indexes: [][]string{{"internal_id"}, {"event_id"}},
		})
	}
	return defs
}

// EnsureCollections creates every missing collection. Existing collections are left untouched.
func EnsureCollections(app core.App) error {
	if _, err := app.FindCollectionByNameOrId(CollectionAccounts); err != nil {
		accounts := core.NewAuthCollection(CollectionAccounts)
		accounts.Fields.Add(text("display_name", false), text("gender", false))
		if err := app.Save(accounts); err != nil {
			return fmt.Errorf("EnsureCollections: %s: %w", CollectionAccounts, err)
		}
	}

	for _, def := range baseDefinitions() {
		if _, err := app.FindCollectionByNameOrId(def.name); err == nil {
			continue
		}

		c := core.NewBaseCollection(def.name)
		c.Fields.Add(def.fields...)
		c.Fields.Add(timestamps()...)
		for _, cols := range def.unique {
			c.AddIndex(indexName(def.name, cols, true), true, joinCols(cols), "")
		}
		for _, col := range def.uniqueSet {
			c.AddIndex(indexName(def.name, []string{col}, true), true, col, nonEmpty(col))
		}
		for _, cols := range def.indexes {
			c.AddIndex(indexName(def.name, cols, false), false, joinCols(cols), "")
		}

		if err := app.Save(c); err != nil {
			return fmt.Errorf("EnsureCollections: %s: %w", def.name, err)
		}
	}
	return nil
}

// DropCollections deletes everything EnsureCollections creates.
func DropCollections(app core.App) error {
	defs := baseDefinitions()
	names := make([]string, 0, len(defs)+1)
	for _, def := range defs {
		names = append(names, def.name)
	}
	names = append(names, CollectionAccounts)

	for _, name := range names {
		c, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(c); err != nil {
			return fmt.Errorf("DropCollections: %s: %w", name, err)
		}
	}
	return nil
}

// UniqueTransferCodes replaces the plain bank_transfer_code index of an
// existing payments collection with a unique one. Saving fails while
// duplicate codes are still stored.
func UniqueTransferCodes(app core.App) error {
	c, err := app.FindCollectionByNameOrId(CollectionPayments)
	if err != nil {
		return err
	}
	cols := []string{"bank_transfer_code"}
	c.RemoveIndex(indexName(CollectionPayments, cols, false))
	c.AddIndex(indexName(CollectionPayments, cols, true), true, cols[0], nonEmpty(cols[0]))
	if err := app.Save(c); err != nil {
		return fmt.Errorf("UniqueTransferCodes: %w", err)
	}
	return nil
}

// PlainTransferCodes reverts UniqueTransferCodes.
func PlainTransferCodes(app core.App) error {
	c, err := app.FindCollectionByNameOrId(CollectionPayments)
	if err != nil {
		return err
	}
	cols := []string{"bank_transfer_code"}
	c.RemoveIndex(indexName(CollectionPayments, cols, true))
	c.AddIndex(indexName(CollectionPayments, cols, false), false, cols[0], "")
	if err := app.Save(c); err != nil {
		return fmt.Errorf("PlainTransferCodes: %w", err)
	}
	return nil
}

func nonEmpty(col string) string {
	return "`" + col + "` != ''"
}

func indexName(collection string, cols []string, unique bool) string {
	prefix := "idx"
	if unique {
		prefix = "uidx"
	}
	name := prefix + "_" + collection
	for _, c := range cols {
		name += "_" + c
	}
	return name
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += "`" + c + "`"
	}
	return out
}
