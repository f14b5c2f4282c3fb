package slot

import (
	"encoding/json"
	"fmt"
)

// Version is the current persisted schema version.
const Version = 3

// Envelope is the persisted form of State.
type Envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// migrations[v] upgrades a version v document to v+1.
var migrations = map[int]func(doc map[string]any){
	// v1 called the drawing scope "drawingStateId".
	1: func(doc map[string]any) {
		charts, _ := doc["charts"].(map[string]any)
		for _, raw := range charts {
			c, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if v, ok := c["drawingStateId"]; ok {
				if _, exists := c["drawingStateKey"]; !exists {
					c["drawingStateKey"] = v
				}
				delete(c, "drawingStateId")
			}
		}
	},
	// v2 had no per-market focus timeframes; focus is not restored across
	// the upgrade.
	2: func(doc map[string]any) {
		if _, ok := doc["focusTimeframes"].(map[string]any); !ok {
			doc["focusTimeframes"] = map[string]any{}
		}
		doc["focus"] = map[string]any{"open": false, "kind": string(FocusMarket)}
	},
}

// Migrate decodes a document stored at version and upgrades it to the
// current schema. It does not touch storage.
func Migrate(version int, raw []byte) (State, error) {
	if version < 1 || version > Version {
		return State{}, fmt.Errorf("slot state: unsupported version %d", version)
	}
	doc := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return State{}, fmt.Errorf("slot state v%d: %w", version, err)
		}
	}
	for v := version; v < Version; v++ {
		migrations[v](doc)
	}

	upgraded, err := json.Marshal(doc)
	if err != nil {
		return State{}, err
	}
	st := DefaultState()
	if err := json.Unmarshal(upgraded, &st); err != nil {
		return State{}, fmt.Errorf("slot state v%d: %w", version, err)
	}
	st.normalize()
	return st, nil
}

// Encode wraps st in a current-version envelope.
func Encode(st State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Version: Version, Data: data})
}

// Decode unwraps an envelope and migrates it.
func Decode(raw []byte) (State, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return State{}, fmt.Errorf("slot state envelope: %w", err)
	}
	return Migrate(env.Version, env.Data)
}
