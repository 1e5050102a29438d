package production

import "strconv"

// Tolerance is the largest difference between the declared defect quantity
// and the record sum that still counts as equal.
const Tolerance = 1e-3

// DefectSum adds up the defect quantities of records. Negative quantities
// contribute nothing.
func DefectSum(records []DefectRecord) float64 {
	var sum float64
	for _, r := range records {
		if r.DefectQty > 0 {
			sum += r.DefectQty
		}
	}
	return sum
}

// IsReconciled reports whether records are a complete breakdown of the
// result's defect quantity. A result without defects must have no records.
func IsReconciled(result ProductionResult, records []DefectRecord) bool {
	declared := nonNegative(result.DefectQty)
	if declared == 0 {
		return len(records) == 0
	}
	diff := DefectSum(records) - declared
	return diff < Tolerance && diff > -Tolerance
}

// RemainingCapacity returns how much defect quantity is still unallocated.
func RemainingCapacity(result ProductionResult, records []DefectRecord) float64 {
	remaining := nonNegative(result.DefectQty) - DefectSum(records)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func nonNegative(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

// FormatQty renders a quantity without trailing zeros.
func FormatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
