package schema

import "encoding/json"

// toMap flattens a JSON-tagged struct into a map so a "type" discriminator
// can be merged alongside its fields for the wire envelope used by the
// downstream WebSocket endpoints.
func toMap(v interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	data, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
