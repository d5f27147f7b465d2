package orders

// GroupLines merges duplicate product references into a single line with the
// summed quantity. The unit price and name come from the first occurrence,
// and first-appearance order is preserved. Grouping an already grouped list
// returns an equivalent list.
func GroupLines(lines []OrderLine) []OrderLine {
	if len(lines) == 0 {
		return nil
	}
	index := make(map[int64]int, len(lines))
	grouped := make([]OrderLine, 0, len(lines))
	for _, line := range lines {
		if at, ok := index[line.ProductID]; ok {
			grouped[at].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(grouped)
		grouped = append(grouped, line)
	}
	return grouped
}
