package shipment

import "strings"

// BuildReference derives the key joining a purchase order number and a
// manufacturer code. Either half may be missing.
func BuildReference(orderNumber, manufacturerCode string) string {
	order := strings.TrimSpace(orderNumber)
	code := strings.TrimSpace(manufacturerCode)
	switch {
	case order != "" && code != "":
		return order + "-" + code
	case order != "":
		return order
	default:
		return code
	}
}

// NormalizeReference trims a reference read from a spreadsheet cell.
func NormalizeReference(ref string) string {
	return strings.TrimSpace(ref)
}
