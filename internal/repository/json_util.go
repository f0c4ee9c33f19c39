package repository

import "encoding/json"

// freezeJSON marshals a snapshot for a JSONB column. Snapshots are plain
// structs, so a marshal failure cannot happen in practice; fall back to an
// empty object rather than poisoning the transaction.
func freezeJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
