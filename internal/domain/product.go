package domain

import "time"

type SizeStock struct {
	Size  string `json:"size" bson:"size"`
	Stock int    `json:"stock" bson:"stock"`
}

// Product is the stock-bearing catalog entry. The catalog owns it; orders only
// read prices from it and decrement its stock counters.
type Product struct {
	ID         string      `json:"id" bson:"_id"`
	Name       string      `json:"name" bson:"name"`
	PriceMinor int64       `json:"price_minor" bson:"price_minor"`
	Images     []string    `json:"images" bson:"images"`
	Sizes      []SizeStock `json:"sizes" bson:"sizes"`
	Stock      int         `json:"stock" bson:"stock"`
	UpdatedAt  time.Time   `json:"updated_at" bson:"updated_at"`
}

// StockFor returns the stock of size and whether the product is offered in it.
func (p Product) StockFor(size string) (int, bool) {
	for _, s := range p.Sizes {
		if s.Size == size {
			return s.Stock, true
		}
	}
	return 0, false
}

// PrimaryImage is the first image, or "" for products without images.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

func (p Product) Ref() ProductRef {
	return ProductRef{
		ID:         p.ID,
		Name:       p.Name,
		PriceMinor: p.PriceMinor,
		ImageRef:   p.PrimaryImage(),
	}
}
