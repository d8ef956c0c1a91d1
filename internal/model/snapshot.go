package model

import (
	"encoding/json"
	"fmt"
)

// Snapshot is a pool state read from the ledger at a given block.
type Snapshot struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
	State       State  `json:"state"`
	TakenAt     string `json:"taken_at"`
}

// UnmarshalJSON decodes a Snapshot and checks its state is usable.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type Alias Snapshot
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.State.ID == "" {
		return fmt.Errorf("snapshot without pool id")
	}
	*s = Snapshot(a)
	return nil
}
