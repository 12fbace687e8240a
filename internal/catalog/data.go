// SPDX-License-Identifier: Apache-2.0

package catalog

var defaultStores = []Store{
	{
		StoreID: "store-001",
		Name:    "Froyo Foundry - Hilliard",
		Address: StoreAddress{Street: "4182 Main St", City: "Hilliard", State: "OH", PostalCode: "43026"},
		Phone:   "+1-614-555-0101",
		Email:   "hilliard@froyofoundry.com",
		Manager: StoreManager{Name: "Emma Rodriguez", Email: "emma.rodriguez@froyofoundry.com"},
		Timezone:   "America/New_York",
		OpenedDate: "2022-06-15",
	},
	{
		StoreID: "store-002",
		Name:    "Froyo Foundry - Dublin",
		Address: StoreAddress{Street: "6750 Perimeter Loop Rd", City: "Dublin", State: "OH", PostalCode: "43017"},
		Phone:   "+1-614-555-0102",
		Email:   "dublin@froyofoundry.com",
		Manager: StoreManager{Name: "Marcus Chen", Email: "marcus.chen@froyofoundry.com"},
		Timezone:   "America/New_York",
		OpenedDate: "2021-09-03",
	},
	{
		StoreID: "store-003",
		Name:    "Froyo Foundry - Easton",
		Address: StoreAddress{Street: "4001 Easton Station", City: "Columbus", State: "OH", PostalCode: "43219"},
		Phone:   "+1-614-555-0103",
		Email:   "easton@froyofoundry.com",
		Manager: StoreManager{Name: "Priya Patel", Email: "priya.patel@froyofoundry.com"},
		Timezone:   "America/New_York",
		OpenedDate: "2023-03-22",
	},
	{
		StoreID: "store-004",
		Name:    "Froyo Foundry - Short North",
		Address: StoreAddress{Street: "1122 N High St", City: "Columbus", State: "OH", PostalCode: "43201"},
		Phone:   "+1-614-555-0104",
		Email:   "shortnorth@froyofoundry.com",
		Manager: StoreManager{Name: "Daniel Kim", Email: "daniel.kim@froyofoundry.com"},
		Timezone:   "America/New_York",
		OpenedDate: "2020-11-10",
	},
	{
		StoreID: "store-005",
		Name:    "Froyo Foundry - Polaris",
		Address: StoreAddress{Street: "1500 Polaris Pkwy", City: "Columbus", State: "OH", PostalCode: "43240"},
		Phone:   "+1-614-555-0105",
		Email:   "polaris@froyofoundry.com",
		Manager: StoreManager{Name: "Olivia Martinez", Email: "olivia.martinez@froyofoundry.com"},
		Timezone:   "America/New_York",
		OpenedDate: "2024-01-18",
	},
}

var defaultFlavors = []Flavor{
	{FlavorID: "flv-001", Name: "Mint Condition", Category: "Classic", ContainsDairy: true, ContainsNuts: false, Description: "Cool mint with dark chocolate chips. Zero bugs detected."},
	{FlavorID: "flv-002", Name: "Berry Blockchain Blast", Category: "Fruit", ContainsDairy: true, ContainsNuts: false, Description: "Strawberry + raspberry layered immutably for distributed sweetness."},
	{FlavorID: "flv-003", Name: "Cookie Container", Category: "Dessert", ContainsDairy: true, ContainsNuts: false, Description: "Chocolate cookie crumble isolated in its own delicious container."},
	{FlavorID: "flv-004", Name: "Recursive Raspberry", Category: "Fruit", ContainsDairy: false, ContainsNuts: false, Description: "Raspberry that calls itself again. And again. And again."},
	{FlavorID: "flv-005", Name: "Vanilla Exception", Category: "Classic", ContainsDairy: true, ContainsNuts: false, Description: "Simple. Predictable. Until it isn't."},
	{FlavorID: "flv-006", Name: "Null Pointer Pistachio", Category: "Nutty", ContainsDairy: true, ContainsNuts: true, Description: "Rich pistachio with zero reference errors."},
	{FlavorID: "flv-007", Name: "Java Jolt", Category: "Coffee", ContainsDairy: true, ContainsNuts: false, Description: "Strong coffee base compiled for performance."},
	{FlavorID: "flv-008", Name: "Peanut Butter Protocol", Category: "Nutty", ContainsDairy: true, ContainsNuts: true, Description: "A well-defined interface between chocolate and peanut butter."},
	{FlavorID: "flv-009", Name: "Cloud Caramel Cache", Category: "Dessert", ContainsDairy: true, ContainsNuts: false, Description: "Warm caramel layered for fast retrieval."},
	{FlavorID: "flv-010", Name: "AIçaí Bowl", Category: "Fruit", ContainsDairy: false, ContainsNuts: false, Description: "Smarter acai with machine-learned flavor balance."},
}
