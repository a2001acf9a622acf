package domain

import (
	"github.com/shopspring/decimal"
)

type Product struct {
	ID              string           `bson:"_id" json:"id"`
	Name            string           `bson:"name" json:"name"`
	SKU             string           `bson:"sku,omitempty" json:"sku"`
	CategoryName    string           `bson:"category_name,omitempty" json:"categoryName,omitempty"`
	Stock           int              `bson:"stock" json:"stock"`
	RegularPrice    *decimal.Decimal `bson:"regular_price,omitempty" json:"regularPrice,omitempty"`
	SalePrice       *decimal.Decimal `bson:"sale_price,omitempty" json:"salePrice,omitempty"`
	MetalVariations []MetalVariation `bson:"metal_variations,omitempty" json:"metalVariations,omitempty"`
	Images          []Image          `bson:"images,omitempty" json:"images,omitempty"`
}

type MetalVariation struct {
	Type         string           `bson:"type" json:"type"`
	Karat        string           `bson:"karat,omitempty" json:"karat,omitempty"`
	Color        string           `bson:"color,omitempty" json:"color,omitempty"`
	RegularPrice *decimal.Decimal `bson:"regular_price,omitempty" json:"regularPrice,omitempty"`
	SalePrice    *decimal.Decimal `bson:"sale_price,omitempty" json:"salePrice,omitempty"`
}

type Image struct {
	URL string `bson:"url" json:"url"`
	Alt string `bson:"alt,omitempty" json:"alt,omitempty"`
}

// ResolvePrice picks the unit price for a line: the matching variation's sale
// price, then its regular price, then the product's sale price, then the
// product's regular price. Variations match on type and karat. Zero and
// negative prices count as unset. ok is false when nothing resolves.
func (p *Product) ResolvePrice(selected *Variation) (decimal.Decimal, bool) {
	candidates := make([]*decimal.Decimal, 0, 4)
	if v := p.matchVariation(selected); v != nil {
		candidates = append(candidates, v.SalePrice, v.RegularPrice)
	}
	candidates = append(candidates, p.SalePrice, p.RegularPrice)

	for _, c := range candidates {
		if c != nil && c.IsPositive() {
			return *c, true
		}
	}
	return decimal.Zero, false
}

func (p *Product) matchVariation(selected *Variation) *MetalVariation {
	if selected == nil {
		return nil
	}
	for i := range p.MetalVariations {
		v := &p.MetalVariations[i]
		if v.Type == selected.Type && v.Karat == selected.Karat {
			return v
		}
	}
	return nil
}

// PrimaryImage returns the first image URL or "".
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}
