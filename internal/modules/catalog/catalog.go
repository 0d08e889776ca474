// README: Product catalog (seeded read-only grocery data, pricing and weight totals).
package catalog

import (
	"fmt"
	"sort"

	"cartpool/internal/modules/market"
	"cartpool/internal/types"
)

// Product is one purchasable grocery item. Price is per unit, Weight
// in kilograms per unit.
type Product struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit"`
	Price  float64 `json:"price"`
	Weight float64 `json:"weight"`
}

// ProductWithID pairs a product with its catalog id for listings.
type ProductWithID struct {
	ID      types.ID `json:"id"`
	Product Product  `json:"product"`
}

// ItemWithProduct is one shopping list line joined with its product.
type ItemWithProduct struct {
	Item    market.ShoppingItem `json:"item"`
	Product Product             `json:"product"`
}

// Catalog is the in-memory product database. Seeded once, read-only
// afterwards, so lookups need no locking.
type Catalog struct {
	products map[types.ID]Product
}

// New returns a catalog seeded with the stock assortment.
func New() *Catalog {
	return &Catalog{products: seedProducts()}
}

// All lists every product ascending by id.
func (c *Catalog) All() []ProductWithID {
	res := make([]ProductWithID, 0, len(c.products))
	for id, p := range c.products {
		res = append(res, ProductWithID{ID: id, Product: p})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Find returns the product for id.
func (c *Catalog) Find(id types.ID) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Validate checks that every item references a known product.
func (c *Catalog) Validate(items []market.ShoppingItem) error {
	for _, item := range items {
		if _, ok := c.products[item.ProductID]; !ok {
			return fmt.Errorf("invalid product item id %d", item.ProductID)
		}
	}
	return nil
}

// PriceWeight sums price and weight over the items. Items must have
// passed Validate; an unknown id here is a fault.
func (c *Catalog) PriceWeight(items []market.ShoppingItem) (price, weight float64) {
	for _, item := range items {
		p, ok := c.products[item.ProductID]
		if !ok {
			panic(fmt.Sprintf("catalog: unknown product id %d", item.ProductID))
		}
		price += p.Price * float64(item.Amount)
		weight += p.Weight * float64(item.Amount)
	}
	return price, weight
}

// Detailed joins each item with its product and returns the totals in
// one pass. Same precondition as PriceWeight.
func (c *Catalog) Detailed(items []market.ShoppingItem) (detailed []ItemWithProduct, price, weight float64) {
	detailed = make([]ItemWithProduct, 0, len(items))
	for _, item := range items {
		p, ok := c.products[item.ProductID]
		if !ok {
			panic(fmt.Sprintf("catalog: unknown product id %d", item.ProductID))
		}
		detailed = append(detailed, ItemWithProduct{Item: item, Product: p})
		price += p.Price * float64(item.Amount)
		weight += p.Weight * float64(item.Amount)
	}
	return detailed, price, weight
}

func seedProducts() map[types.ID]Product {
	return map[types.ID]Product{
		13: {"Kaffee Auslese", "Packung", 5.79, 0.5},
		14: {"Dallmayr Kaffee", "Packung", 6.29, 0.5},
		15: {"Bärenmarke Kondensmilch", "Dose", 0.89, 0.34},
		16: {"Jacobs Gold", "Dose", 7.49, 0.2},
		17: {"Nescafe Classic", "Dose", 4.39, 0.1},
		21: {"Brot", "Stück", 1.49, 0.5},
		22: {"Roggenvollkornbrot", "Stück", 0.79, 0.5},
		23: {"Sonnenkernbrot", "Stück", 1.39, 0.5},
		31: {"Apfel", "kg", 2.49, 1.5},
		32: {"Gurke", "Stück", 0.49, 0.2},
		33: {"Banane", "Stück", 0.89, 0.2},
		34: {"Paprika Rot", "Packung", 1.59, 0.5},
		35: {"Karotten", "Schale", 1.69, 1.0},
		36: {"Tomaten", "Packung", 2.79, 0.5},
		37: {"Orangen", "Netz", 1.99, 2.0},
		41: {"Nutella", "Dose", 1.99, 0.3},
		42: {"Corny Riegel", "Riegel", 1.59, 0.15},
		43: {"Haribo Color-Rado", "Packung", 1.19, 0.36},
		44: {"Ritter Sport Voll-Nuss", "Tafel", 1.49, 0.1},
		45: {"Ritter Sport Marzipan", "Tafel", 1.19, 0.1},
		46: {"Milka Alpenmilch", "Tafel", 0.99, 0.1},
		50: {"Spaghetti", "Packung", 0.79, 0.5},
		60: {"Erdnüsse", "Packung", 1.79, 0.125},
		71: {"Milch", "Packung", 1.09, 1.0},
		72: {"Käse Gouda jung", "Packung", 2.06, 0.4},
		73: {"Käseaufschnitt", "Packung", 1.39, 0.25},
		74: {"Süssrahmbutter", "Packung", 2.49, 0.25},
	}
}
