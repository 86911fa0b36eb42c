package state

import (
	"errors"

	"github.com/google/uuid"
)

// ErrItemNotFound reports a trade step that referenced a missing item. The
// caller must not perform the matching add when remove fails.
var ErrItemNotFound = errors.New("inventory: item not found")

// InventoryItem is one stack of items held by an instance.
type InventoryItem struct {
	ID       uuid.UUID
	Name     string
	ItemType string
	Amount   int
	Price    float64
}

// PendingItem queues an item by name for asynchronous resolution against the
// item catalog collaborator.
type PendingItem struct {
	Name   string
	Amount int
}

// Inventory is the item list an instance carries in its scope under the
// "inventory" variable, so scripts can reach it.
type Inventory struct {
	Items      []InventoryItem
	ItemsToAdd []PendingItem
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{}
}

// Queue requests an item by name; it resolves to a concrete item between
// ticks. Exposed to scripts as "add".
func (inv *Inventory) Queue(name string, amount int) {
	if inv == nil || amount <= 0 {
		return
	}
	inv.ItemsToAdd = append(inv.ItemsToAdd, PendingItem{Name: name, Amount: amount})
}

// AddItem inserts an item, merging into an existing stack of the same id.
func (inv *Inventory) AddItem(item InventoryItem) {
	if inv == nil || item.Amount <= 0 {
		return
	}
	for i := range inv.Items {
		if inv.Items[i].ID == item.ID {
			inv.Items[i].Amount += item.Amount
			return
		}
	}
	inv.Items = append(inv.Items, item)
}

// RemoveItem takes amount units of the identified item out of the inventory
// and returns them as a new stack. If the item is missing the inventory is
// unchanged and ErrItemNotFound is returned; trades rely on this to stay
// atomic.
func (inv *Inventory) RemoveItem(id uuid.UUID, amount int) (InventoryItem, error) {
	if inv == nil || amount <= 0 {
		return InventoryItem{}, ErrItemNotFound
	}
	for i := range inv.Items {
		if inv.Items[i].ID != id {
			continue
		}
		item := inv.Items[i]
		if item.Amount <= amount {
			inv.Items = append(inv.Items[:i], inv.Items[i+1:]...)
			return item, nil
		}
		inv.Items[i].Amount -= amount
		item.Amount = amount
		return item, nil
	}
	return InventoryItem{}, ErrItemNotFound
}

// ItemByID returns a copy of the identified stack.
func (inv *Inventory) ItemByID(id uuid.UUID) (InventoryItem, bool) {
	if inv == nil {
		return InventoryItem{}, false
	}
	for _, item := range inv.Items {
		if item.ID == id {
			return item, true
		}
	}
	return InventoryItem{}, false
}

// TotalCount sums the units across all stacks.
func (inv *Inventory) TotalCount() int {
	if inv == nil {
		return 0
	}
	total := 0
	for _, item := range inv.Items {
		total += item.Amount
	}
	return total
}
