package domain

import "sort"

// StockLines merges the summary's items by product id and sorts them
// ascending, which is the order locks are taken in.
func (s *CheckoutSummary) StockLines() []StockLine {
	byProduct := make(map[int64]int)
	for _, shop := range s.Shops {
		for _, item := range shop.Items {
			byProduct[item.ProductID] += item.Quantity
		}
	}
	return sortedLines(byProduct)
}

func sortedLines(byProduct map[int64]int) []StockLine {
	lines := make([]StockLine, 0, len(byProduct))
	for id, qty := range byProduct {
		lines = append(lines, StockLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}
