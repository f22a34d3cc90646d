// Package notify carries change events between store writers and the
// listener that keeps local caches honest. Events travel over Redis pub/sub,
// one channel per table. Delivery is at-most-once: a disconnected listener
// does not see missed events, so consumers pair this with cache TTL expiry.
package notify

import "encoding/json"

type Event struct {
	Table     string          `json:"table"`
	Operation string          `json:"operation"`
	NewValue  json.RawMessage `json:"new_value"`
}

// Channel returns the pub/sub channel name for a table.
func Channel(table string) string {
	return "changes:" + table
}
