package core

import "strings"

// Dirty-state checks for the edit surfaces: a save round-trip is only worth
// making when the draft actually differs from what is persisted.

// MoneyInputDirty reports whether a typed money draft differs from the
// persisted minor-unit value. It reuses ParseAmountToMinor so that "0.00",
// "0" and "" all compare equal to a persisted zero.
func MoneyInputDirty(draft string, persistedMinor int64, currency Currency) bool {
	return ParseAmountToMinor(draft, currency) != persistedMinor
}

// TextDirty reports whether a free-text draft differs from the persisted
// value, ignoring surrounding whitespace.
func TextDirty(draft, persisted string) bool {
	return strings.TrimSpace(draft) != strings.TrimSpace(persisted)
}
