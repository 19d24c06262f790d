package amqp

import (
	"encoding/json"
	"slices"
	"time"
)

// DataChangedMessage announces that records were imported. Accounts and
// Years name what changed so consumers can warm only those reports; empty
// lists mean everything may have changed.
type DataChangedMessage struct {
	Accounts  []string  `json:"accounts"`
	Years     []int     `json:"years"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDataChangedMessage sorts and deduplicates accounts and years.
func NewDataChangedMessage(accounts []string, years []int) *DataChangedMessage {
	accounts = slices.Clone(accounts)
	slices.Sort(accounts)
	accounts = slices.Compact(accounts)
	if len(accounts) > 0 && accounts[0] == "" {
		accounts = accounts[1:]
	}

	years = slices.Clone(years)
	slices.Sort(years)
	years = slices.Compact(years)

	return &DataChangedMessage{
		Accounts:  accounts,
		Years:     years,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DataChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DataChangedMessageFromJSON(data []byte) (*DataChangedMessage, error) {
	var msg DataChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
