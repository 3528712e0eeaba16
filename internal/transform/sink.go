package transform

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/lychee-technology/pimsync"
	"go.uber.org/zap"
)

// Recorder keeps emissions in memory
type Recorder struct {
	mu        sync.Mutex
	emissions []pimsync.Emission
}

func (r *Recorder) Emit(e pimsync.Emission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emissions = append(r.emissions, e)
}

// Emissions returns a copy of everything emitted so far
func (r *Recorder) Emissions() []pimsync.Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pimsync.Emission, len(r.emissions))
	copy(out, r.emissions)
	return out
}

// ByKey returns the emissions of one target key in order
func (r *Recorder) ByKey(key string) []pimsync.Emission {
	var out []pimsync.Emission
	for _, e := range r.Emissions() {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded emissions
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.emissions = nil
	r.mu.Unlock()
}

// JSONLines writes one JSON object per emission, tagged with the entity being written.
type JSONLines struct {
	enc    *json.Encoder
	entity string
	count  int
}

// NewJSONLines creates a sink writing to w
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// StartEntity tags the following emissions with an entity key
func (j *JSONLines) StartEntity(key string) {
	j.entity = key
}

// Count returns the number of lines written
func (j *JSONLines) Count() int {
	return j.count
}

func (j *JSONLines) Emit(e pimsync.Emission) {
	line := struct {
		Entity string `json:"entity,omitempty"`
		pimsync.Emission
	}{Entity: j.entity, Emission: e}
	if err := j.enc.Encode(line); err != nil {
		zap.S().Errorw("failed to write emission", "key", e.Key, "entity", j.entity, "error", err)
		return
	}
	j.count++
}
