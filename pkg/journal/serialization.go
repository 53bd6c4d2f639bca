package journal

import (
	"encoding/json"
	"fmt"
)

// MarshalReceipt serializes a Receipt to JSON bytes.
func MarshalReceipt(r *Receipt) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil Receipt")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Receipt to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalReceipt deserializes a Receipt from JSON bytes.
func UnmarshalReceipt(data []byte) (*Receipt, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Receipt: %w", err)
	}
	return &r, nil
}
