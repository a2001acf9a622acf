package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string     `bson:"user_id" json:"userId"`
	Items     []CartItem `bson:"items" json:"items"`
	Version   int64      `bson:"version" json:"version"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

type CartItem struct {
	ID                string            `bson:"id" json:"id"`
	ProductID         string            `bson:"product_id" json:"productId"`
	Quantity          int               `bson:"quantity" json:"quantity"`
	SelectedVariation *Variation        `bson:"selected_variation,omitempty" json:"selectedMetalVariation,omitempty"`
	Customizations    map[string]string `bson:"customizations,omitempty" json:"customizations,omitempty"`
	UnitPrice         decimal.Decimal   `bson:"unit_price" json:"price"`
	AddedAt           time.Time         `bson:"added_at" json:"addedAt"`
}

// Variation is the metal configuration picked for a cart or order line.
type Variation struct {
	Type  string `bson:"type" json:"type"`
	Karat string `bson:"karat,omitempty" json:"karat,omitempty"`
	Color string `bson:"color,omitempty" json:"color,omitempty"`
}

// SameVariation compares two optional variations field by field; two nil
// variations are equal.
func SameVariation(a, b *Variation) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (c *Cart) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// FindItem returns the index of the line with the given id or -1.
func (c *Cart) FindItem(itemID string) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// FindLine returns the index of the line for (productID, variation) or -1.
func (c *Cart) FindLine(productID string, variation *Variation) int {
	for i, item := range c.Items {
		if item.ProductID == productID && SameVariation(item.SelectedVariation, variation) {
			return i
		}
	}
	return -1
}

// RemoveItem drops the line with the given id and reports whether one was removed.
func (c *Cart) RemoveItem(itemID string) bool {
	idx := c.FindItem(itemID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

// QuantityByProduct sums line quantities per product. Two lines of the same
// product in different metals draw on the same stock counter.
func (c *Cart) QuantityByProduct() map[string]int {
	out := make(map[string]int, len(c.Items))
	for _, item := range c.Items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
