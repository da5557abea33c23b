package models

import (
	"encoding/json"
	"strconv"
)

// IDs is a list of snowflake IDs that travels as a JSON array of strings,
// matching the `,string` convention used for scalar ID fields.
type IDs []int64

func (ids IDs) MarshalJSON() ([]byte, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return json.Marshal(out)
}

func (ids *IDs) UnmarshalJSON(data []byte) error {
	// json.Number accepts both 123 and "123".
	var raw []json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(IDs, len(raw))
	for i, n := range raw {
		v, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return err
		}
		out[i] = v
	}
	*ids = out
	return nil
}
