// SPDX-License-Identifier: Apache-2.0

// Package catalog holds the read-only store and flavor lookup tables. The
// tables are plain injected values so that the agent tool layer and the HTTP
// catalog endpoints share one source of truth without process-wide state.
package catalog

import "strings"

// Store is a Froyo Foundry store location.
type Store struct {
	StoreID    string       `json:"store_id"`
	Name       string       `json:"name"`
	Address    StoreAddress `json:"address"`
	Phone      string       `json:"phone"`
	Email      string       `json:"email"`
	Manager    StoreManager `json:"manager"`
	Timezone   string       `json:"timezone"`
	OpenedDate string       `json:"opened_date"`
}

type StoreAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

type StoreManager struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Flavor is a frozen yogurt flavor with allergen information.
type Flavor struct {
	FlavorID      string `json:"flavor_id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	ContainsDairy bool   `json:"contains_dairy"`
	ContainsNuts  bool   `json:"contains_nuts"`
	Description   string `json:"description"`
}

// Catalog is an immutable snapshot of the store and flavor tables.
type Catalog struct {
	stores  []Store
	flavors []Flavor
}

// New builds a catalog over the given tables. The slices are not copied; the
// caller must not mutate them afterwards.
func New(stores []Store, flavors []Flavor) *Catalog {
	return &Catalog{stores: stores, flavors: flavors}
}

// Default returns a catalog with the built-in demo data.
func Default() *Catalog {
	return New(defaultStores, defaultFlavors)
}

// Stores lists all stores.
func (c *Catalog) Stores() []Store { return c.stores }

// Flavors lists all flavors.
func (c *Catalog) Flavors() []Flavor { return c.flavors }

// StoreByID looks up a store by id, case-insensitively.
func (c *Catalog) StoreByID(storeID string) (Store, bool) {
	for _, s := range c.stores {
		if strings.EqualFold(s.StoreID, storeID) {
			return s, true
		}
	}
	return Store{}, false
}

// FlavorByID looks up a flavor by id, case-insensitively.
func (c *Catalog) FlavorByID(flavorID string) (Flavor, bool) {
	for _, f := range c.flavors {
		if strings.EqualFold(f.FlavorID, flavorID) {
			return f, true
		}
	}
	return Flavor{}, false
}
