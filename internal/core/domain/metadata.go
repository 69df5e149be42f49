package domain

import "time"

// SlotMetadata describes a saved slot. It is stored next to the payload so
// slots can be listed without reading full payloads.
type SlotMetadata struct {
	SlotID string `json:"slot_id"`

	// Name is the display name, possibly player written.
	Name string `json:"name,omitempty"`
	// Subname is a secondary label, e.g. the area the player saved in.
	Subname string `json:"subname,omitempty"`

	SavedAt time.Time `json:"saved_at"`

	// TotalPlayed is the play time of the whole playthrough.
	TotalPlayed time.Duration `json:"total_played"`
	// SlotPlayed is the play time since this slot was first created or loaded.
	SlotPlayed time.Duration `json:"slot_played"`

	// Map is the root level that was open when saving. Streamed sub-levels
	// are listed in Levels.
	Map    string   `json:"map,omitempty"`
	Levels []string `json:"levels"`

	FormatVersion uint32 `json:"format_version"`
	SchemaVersion uint32 `json:"schema_version"`
	AppVersion    string `json:"app_version,omitempty"`

	Thumbnail []byte `json:"thumbnail,omitempty"`

	ObjectCount int    `json:"object_count"`
	PayloadSize int64  `json:"payload_size"`
	PayloadHash string `json:"payload_hash,omitempty"`
	Compressed  bool   `json:"compressed,omitempty"`
	Encrypted   bool   `json:"encrypted,omitempty"`
}

// HasLevel reports whether the slot contains data for level.
func (m *SlotMetadata) HasLevel(level string) bool {
	for _, l := range m.Levels {
		if l == level {
			return true
		}
	}
	return false
}
