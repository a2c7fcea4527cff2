package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NextBillNo returns max(numeric existing)+1 zero-padded to four digits.
// Non-numeric bill numbers are ignored.
func NextBillNo(existing []string) string {
	highest := 0
	for _, raw := range existing {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%04d", highest+1)
}
