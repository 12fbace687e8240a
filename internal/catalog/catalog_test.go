// SPDX-License-Identifier: Apache-2.0

package catalog

import "testing"

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	if len(c.Stores()) != 5 {
		t.Fatalf("expected 5 stores, got %d", len(c.Stores()))
	}
	if len(c.Flavors()) != 10 {
		t.Fatalf("expected 10 flavors, got %d", len(c.Flavors()))
	}
}

func TestStoreByID(t *testing.T) {
	c := Default()

	store, ok := c.StoreByID("store-001")
	if !ok {
		t.Fatal("expected store-001 to exist")
	}
	if store.Manager.Email != "emma.rodriguez@froyofoundry.com" {
		t.Fatalf("unexpected manager email: %s", store.Manager.Email)
	}

	if upper, ok := c.StoreByID("STORE-001"); !ok || upper.StoreID != "store-001" {
		t.Fatal("expected store lookup to be case-insensitive")
	}

	if _, ok := c.StoreByID("store-999"); ok {
		t.Fatal("expected unknown store to be missing")
	}
}

func TestFlavorByID(t *testing.T) {
	c := Default()

	flavor, ok := c.FlavorByID("flv-006")
	if !ok {
		t.Fatal("expected flv-006 to exist")
	}
	if !flavor.ContainsNuts {
		t.Fatal("expected pistachio to contain nuts")
	}

	if _, ok := c.FlavorByID("flv-999"); ok {
		t.Fatal("expected unknown flavor to be missing")
	}
}
