package shared

import "fmt"

// SyncLockKey names the lock held while a POS sync runs for a business date.
func SyncLockKey(date string) string {
	return fmt.Sprintf("pos:sync:%s", date)
}

// RecomputeLockKey names the lock held while a ledger row is recomputed.
func RecomputeLockKey(commodity, date string) string {
	return fmt.Sprintf("ledger:%s:%s", commodity, date)
}
