package model

import (
	"encoding/json"
)

// EventRecord is the normalized journal entry for one decoded event.
type EventRecord struct {
	Slot       uint64 `json:"slot"`
	Signature  string `json:"signature"`
	Tag        string `json:"tag"`
	Raw        string `json:"raw"`
	IngestedAt string `json:"ingested_at"`
}

// MarshalJSON ensures EventRecord is encoded with stable field names.
func (er EventRecord) MarshalJSON() ([]byte, error) {
	type Alias EventRecord
	return json.Marshal(Alias(er))
}

// UnmarshalJSON decodes an EventRecord from JSON.
func (er *EventRecord) UnmarshalJSON(data []byte) error {
	type Alias EventRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*er = EventRecord(a)
	return nil
}

// TradeRecord is one executed match for persistence.
type TradeRecord struct {
	Slot         uint64 `json:"slot"`
	Signature    string `json:"signature"`
	TokenA       string `json:"token_a"`
	TokenB       string `json:"token_b"`
	TokenAAmount uint64 `json:"token_a_amount"`
	TokenBAmount uint64 `json:"token_b_amount"`
	IngestedAt   string `json:"ingested_at"`
}
