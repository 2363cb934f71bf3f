// internal/tabs/title.go

package tabs

import (
	"fmt"
	"strconv"
	"strings"
)

// NextTitle zwraca zdeduplikowany tytuł karty dla bazy: samą bazę gdy
// nic nie koliduje, inaczej "baza (N)" gdzie N jest o jeden większe od
// najwyższego istniejącego sufiksu tej bazy (pierwsza kolizja dostaje 1)
func NextTitle(base string, existing []string) string {
	maxSuffix := -1 // -1 = żaden istniejący tytuł nie koliduje
	for _, title := range existing {
		if title == base {
			if maxSuffix < 0 {
				maxSuffix = 0
			}
			continue
		}
		if n, ok := parseSuffix(base, title); ok && n > maxSuffix {
			maxSuffix = n
		}
	}

	if maxSuffix < 0 {
		return base
	}
	return fmt.Sprintf("%s (%d)", base, maxSuffix+1)
}

// parseSuffix rozpoznaje tytuł postaci "baza (N)" i zwraca N
func parseSuffix(base, title string) (int, bool) {
	prefix := base + " ("
	if !strings.HasPrefix(title, prefix) || !strings.HasSuffix(title, ")") {
		return 0, false
	}
	n, err := strconv.Atoi(title[len(prefix) : len(title)-1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
