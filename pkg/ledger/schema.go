package ledger

// Key prefixes for the small PebbleDB metadata store that sits
// alongside the JSON ledger files. It never holds ledger entries
// themselves (those are the spec-mandated JSON files) — only sync
// scheduler state that must survive a restart: each account's active
// keyset, its last-processed cursor, and the registry's account roster.
// The notifications package stores its records in the same database
// under its own /data/notification/ and /index/notification/ prefixes.
const (
	prefixKeyset = "meta/keyset/"
	prefixCursor = "meta/cursor/"
	prefixRoster = "meta/roster/"
)

func keysetKey(accountID string) []byte {
	return []byte(prefixKeyset + accountID)
}

func cursorKey(accountID string) []byte {
	return []byte(prefixCursor + accountID)
}

func rosterKey(accountID string) []byte {
	return []byte(prefixRoster + accountID)
}

func rosterPrefix() []byte {
	return []byte(prefixRoster)
}
