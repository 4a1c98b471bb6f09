package domain

import "time"

const (
	// DefaultSize is used when an item is added without picking a size.
	DefaultSize = "M"
	// MaxLineQuantity caps a single line of a loaded cart.
	MaxLineQuantity = 99
)

// LineItem is one product+size entry of a cart or an order snapshot.
type LineItem struct {
	ProductID      string `json:"product_id" bson:"product_id"`
	Name           string `json:"name" bson:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor" bson:"unit_price_minor"`
	Size           string `json:"size" bson:"size"`
	Quantity       int    `json:"quantity" bson:"quantity"`
	ImageRef       string `json:"image_ref,omitempty" bson:"image_ref,omitempty"`
}

// LineTotalMinor is unit price times quantity.
func (li LineItem) LineTotalMinor() int64 {
	return li.UnitPriceMinor * int64(li.Quantity)
}

func (li LineItem) matches(productID, size string) bool {
	return li.ProductID == productID && li.Size == size
}

// Cart holds line items in display order.
type Cart struct {
	SessionKey string     `json:"session_key" bson:"session_key"`
	Items      []LineItem `json:"items" bson:"items"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// TotalItems sums quantities over all line items.
func (c Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Quantity returns the quantity held for (productID, size), or 0.
func (c Cart) Quantity(productID, size string) int {
	for _, item := range c.Items {
		if item.matches(productID, size) {
			return item.Quantity
		}
	}
	return 0
}

func (c Cart) Contains(productID, size string) bool {
	return c.Quantity(productID, size) > 0
}

// ProductRef is what the cart needs to know about a product to display it.
type ProductRef struct {
	ID         string
	Name       string
	PriceMinor int64
	ImageRef   string
}

// Action is a cart transition. Implementations never fail: malformed input
// is normalized or ignored.
type Action interface {
	Name() string
	apply(items []LineItem) []LineItem
}

// AddItem increases the quantity of (product, size) by Quantity, appending a
// new line when absent. Zero quantity means 1.
type AddItem struct {
	Product  ProductRef
	Size     string
	Quantity int
}

// RemoveItem deletes the (ProductID, Size) line if present.
type RemoveItem struct {
	ProductID string
	Size      string
}

// SetQuantity replaces the quantity in place; quantity <= 0 removes the line.
type SetQuantity struct {
	ProductID string
	Size      string
	Quantity  int
}

// Clear empties the cart.
type Clear struct{}

// Load replaces all items, typically with persisted state.
type Load struct {
	Items []LineItem
}

func (AddItem) Name() string     { return "add_item" }
func (RemoveItem) Name() string  { return "remove_item" }
func (SetQuantity) Name() string { return "set_quantity" }
func (Clear) Name() string       { return "clear" }
func (Load) Name() string        { return "load" }

// Apply returns the cart produced by action. The input cart is not modified.
func Apply(cart Cart, action Action) Cart {
	next := Cart{SessionKey: cart.SessionKey, UpdatedAt: cart.UpdatedAt}
	if action == nil {
		next.Items = cloneItems(cart.Items)
		return next
	}
	next.Items = action.apply(cloneItems(cart.Items))
	return next
}

func (a AddItem) apply(items []LineItem) []LineItem {
	if a.Product.ID == "" {
		return items
	}
	size := a.Size
	if size == "" {
		size = DefaultSize
	}
	qty := a.Quantity
	if qty == 0 {
		qty = 1
	}

	for i, item := range items {
		if item.matches(a.Product.ID, size) {
			newQty := item.Quantity + qty
			if newQty <= 0 {
				return removeAt(items, i)
			}
			items[i].Quantity = newQty
			return items
		}
	}

	if qty < 1 {
		return items
	}
	return append(items, LineItem{
		ProductID:      a.Product.ID,
		Name:           a.Product.Name,
		UnitPriceMinor: a.Product.PriceMinor,
		Size:           size,
		Quantity:       qty,
		ImageRef:       a.Product.ImageRef,
	})
}

func (a RemoveItem) apply(items []LineItem) []LineItem {
	for i, item := range items {
		if item.matches(a.ProductID, a.Size) {
			return removeAt(items, i)
		}
	}
	return items
}

func (a SetQuantity) apply(items []LineItem) []LineItem {
	for i, item := range items {
		if item.matches(a.ProductID, a.Size) {
			if a.Quantity <= 0 {
				return removeAt(items, i)
			}
			items[i].Quantity = a.Quantity
			return items
		}
	}
	return items
}

func (Clear) apply([]LineItem) []LineItem {
	return []LineItem{}
}

// Load ignores lines with a negative unit price and caps merged quantities.
func (a Load) apply([]LineItem) []LineItem {
	items := make([]LineItem, 0, len(a.Items))
	for _, item := range a.Items {
		if item.UnitPriceMinor < 0 {
			continue
		}
		items = append(items, item)
	}
	items = NormalizeItems(items)
	for i := range items {
		if items[i].Quantity > MaxLineQuantity {
			items[i].Quantity = MaxLineQuantity
		}
	}
	return items
}

// NormalizeItems drops lines without a product or with quantity < 1 and merges
// duplicate (product, size) keys, keeping first-seen order.
func NormalizeItems(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		if item.Size == "" {
			item.Size = DefaultSize
		}
		merged := false
		for i := range out {
			if out[i].matches(item.ProductID, item.Size) {
				out[i].Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, item)
		}
	}
	return out
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

func removeAt(items []LineItem, i int) []LineItem {
	return append(items[:i], items[i+1:]...)
}
