package state

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func timeAt(sec int64) time.Time { return time.Unix(sec, 0) }

func TestAddItemMergesStacks(t *testing.T) {
	inv := NewInventory()
	id := uuid.New()

	inv.AddItem(InventoryItem{ID: id, Name: "apple", Amount: 2})
	inv.AddItem(InventoryItem{ID: id, Name: "apple", Amount: 3})

	if len(inv.Items) != 1 {
		t.Fatalf("stacks = %d, want 1", len(inv.Items))
	}
	if item, _ := inv.ItemByID(id); item.Amount != 5 {
		t.Fatalf("amount = %d, want 5", item.Amount)
	}
}

func TestAddItemIgnoresNonPositiveAmount(t *testing.T) {
	inv := NewInventory()
	inv.AddItem(InventoryItem{ID: uuid.New(), Name: "ghost", Amount: 0})
	if len(inv.Items) != 0 {
		t.Fatalf("zero-amount item added: %+v", inv.Items)
	}
}

func TestRemoveItemPartial(t *testing.T) {
	inv := NewInventory()
	id := uuid.New()
	inv.AddItem(InventoryItem{ID: id, Name: "arrow", Amount: 10})

	taken, err := inv.RemoveItem(id, 4)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if taken.Amount != 4 {
		t.Fatalf("taken = %d, want 4", taken.Amount)
	}
	if item, _ := inv.ItemByID(id); item.Amount != 6 {
		t.Fatalf("remaining = %d, want 6", item.Amount)
	}
}

func TestRemoveItemDrainsStack(t *testing.T) {
	inv := NewInventory()
	id := uuid.New()
	inv.AddItem(InventoryItem{ID: id, Name: "key", Amount: 1})

	if _, err := inv.RemoveItem(id, 1); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, ok := inv.ItemByID(id); ok {
		t.Fatal("drained stack still present")
	}
}

func TestRemoveItemMissingLeavesInventoryUnchanged(t *testing.T) {
	inv := NewInventory()
	inv.AddItem(InventoryItem{ID: uuid.New(), Name: "coin", Amount: 8})

	_, err := inv.RemoveItem(uuid.New(), 1)
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
	if got := inv.TotalCount(); got != 8 {
		t.Fatalf("inventory changed on a miss: %d", got)
	}
}

func TestQueuePendingItems(t *testing.T) {
	inv := NewInventory()
	inv.Queue("bread", 2)
	inv.Queue("bread", 0)

	if len(inv.ItemsToAdd) != 1 {
		t.Fatalf("pending = %+v", inv.ItemsToAdd)
	}
}

func TestCommunicationExpiry(t *testing.T) {
	c := PlayerCommunication{EndTime: timeAt(100)}
	if c.Expired(timeAt(99)) {
		t.Fatal("not yet expired")
	}
	if !c.Expired(timeAt(101)) {
		t.Fatal("should be expired")
	}
}
