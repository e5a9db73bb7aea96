package stats

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"lbsim/internal/core"
)

// WorkerStats is the aggregate for one worker or for the global total.
type WorkerStats struct {
	Success        int64   `json:"success"`
	Failed         int64   `json:"failed"`
	Total          int64   `json:"total"`
	AvgRequestTime float64 `json:"avgRequestTime"`
}

// SuccessRate returns the percentage of recorded outcomes that succeeded.
func (ws WorkerStats) SuccessRate() float64 {
	recorded := ws.Success + ws.Failed
	if recorded == 0 {
		return 0
	}
	return float64(ws.Success) / float64(recorded) * 100
}

// Snapshot maps worker names and the reserved "total" key to aggregates.
type Snapshot struct {
	Workers    []string // worker names in pool order
	Stats      map[string]WorkerStats
	SinkErrors int64
}

// Total returns the global aggregate.
func (s Snapshot) Total() WorkerStats {
	return s.Stats[core.TotalKey]
}

// Worker returns the aggregate for name.
func (s Snapshot) Worker(name string) (WorkerStats, bool) {
	if name == core.TotalKey {
		return WorkerStats{}, false
	}
	ws, ok := s.Stats[name]
	return ws, ok
}

// MarshalJSON renders the flat map served by the stats endpoint.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Stats)
}

// ParseSnapshot decodes a stats payload. Worker order follows the order
// of keys in the document.
func ParseSnapshot(body []byte) (Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return Snapshot{}, fmt.Errorf("invalid JSON in stats payload")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Snapshot{}, fmt.Errorf("stats payload is not an object")
	}

	snap := Snapshot{Stats: make(map[string]WorkerStats)}
	root.ForEach(func(key, value gjson.Result) bool {
		ws := WorkerStats{
			Success:        value.Get("success").Int(),
			Failed:         value.Get("failed").Int(),
			Total:          value.Get("total").Int(),
			AvgRequestTime: value.Get("avgRequestTime").Float(),
		}
		snap.Stats[key.String()] = ws
		if key.String() != core.TotalKey {
			snap.Workers = append(snap.Workers, key.String())
		}
		return true
	})

	if _, ok := snap.Stats[core.TotalKey]; !ok {
		return Snapshot{}, fmt.Errorf("stats payload has no %q entry", core.TotalKey)
	}
	return snap, nil
}
