package balancer

import "sort"

type weightedItem struct {
	name          string
	weight        int
	currentWeight int
}

// SmoothWeighted is a smooth weighted round robin over named items. It is not
// safe for concurrent use.
type SmoothWeighted struct {
	items []*weightedItem
	index map[string]int
}

// Add inserts an item or updates its weight. Updating restarts the item's
// current weight.
func (sw *SmoothWeighted) Add(name string, weight int) {
	if sw.index == nil {
		sw.index = make(map[string]int)
	}
	if idx, ok := sw.index[name]; ok {
		item := sw.items[idx]
		if item.weight != weight {
			item.weight = weight
			item.currentWeight = 0
		}
		return
	}
	sw.index[name] = len(sw.items)
	sw.items = append(sw.items, &weightedItem{name: name, weight: weight})
}

// Delete removes an item. Order of the remaining items is preserved.
func (sw *SmoothWeighted) Delete(name string) {
	idx, ok := sw.index[name]
	if !ok {
		return
	}
	sw.items = append(sw.items[:idx], sw.items[idx+1:]...)
	delete(sw.index, name)
	for i := idx; i < len(sw.items); i++ {
		sw.index[sw.items[i].name] = i
	}
}

// Reset restarts the rotation without changing weights.
func (sw *SmoothWeighted) Reset() {
	for _, item := range sw.items {
		item.currentWeight = 0
	}
}

// Clear removes every item.
func (sw *SmoothWeighted) Clear() {
	sw.items = nil
	sw.index = nil
}

// Len returns the number of items.
func (sw *SmoothWeighted) Len() int { return len(sw.items) }

// Total returns the sum of positive weights.
func (sw *SmoothWeighted) Total() int {
	total := 0
	for _, item := range sw.items {
		if item.weight > 0 {
			total += item.weight
		}
	}
	return total
}

// All returns every item's weight.
func (sw *SmoothWeighted) All() map[string]int {
	out := make(map[string]int, len(sw.items))
	for _, item := range sw.items {
		out[item.name] = item.weight
	}
	return out
}

// Names returns item names sorted.
func (sw *SmoothWeighted) Names() []string {
	names := make([]string, 0, len(sw.items))
	for _, item := range sw.items {
		names = append(names, item.name)
	}
	sort.Strings(names)
	return names
}

// Next returns the next item, or "" when no item has a positive weight.
// Ties go to the earliest added item.
func (sw *SmoothWeighted) Next() string {
	var best *weightedItem
	total := 0
	for _, item := range sw.items {
		if item.weight <= 0 {
			continue
		}
		total += item.weight
		item.currentWeight += item.weight
		if best == nil || item.currentWeight > best.currentWeight {
			best = item
		}
	}
	if best == nil {
		return ""
	}
	best.currentWeight -= total
	return best.name
}
