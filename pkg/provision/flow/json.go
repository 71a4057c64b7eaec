// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ToJSON converts any data to a JSON string.
func ToJSON(data any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "marshaling to JSON")
	}
	return string(b), nil
}

// FromJSON converts a JSON string into a value.
func FromJSON(s string) (any, error) {
	var result any
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return nil, errors.Wrap(err, "unmarshaling from JSON")
	}
	return result, nil
}
