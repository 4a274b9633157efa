// models/jsonb.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Inventory maps an item id to its quantity. Stored as jsonb.
type Inventory map[string]int

func (i Inventory) Value() (driver.Value, error) {
	if i == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(i)
}

func (i *Inventory) Scan(src any) error {
	return scanJSON(src, i)
}

// Clone returns an independent copy (never nil).
func (i Inventory) Clone() Inventory {
	out := make(Inventory, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}

// MissionRecord is one cleared mission in a player's history.
type MissionRecord struct {
	ID        string    `json:"id"`
	Rank      string    `json:"rank"`
	ClearedAt time.Time `json:"clearedAt"`
	XP        int64     `json:"xp"`
	Level     int       `json:"level"`
}

// MissionRecords keeps at most one entry per mission id, in first-clear order.
type MissionRecords []MissionRecord

func (m MissionRecords) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *MissionRecords) Scan(src any) error {
	return scanJSON(src, m)
}

func (m MissionRecords) Clone() MissionRecords {
	out := make(MissionRecords, len(m))
	copy(out, m)
	return out
}

// CombatStats is the stat snapshot a player brings into a match.
type CombatStats struct {
	MaxHP   int    `json:"maxHp"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
	Speed   int    `json:"speed"`
	Element string `json:"element"`
}

func (s CombatStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *CombatStats) Scan(src any) error {
	return scanJSON(src, s)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
