package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ScanJSON decodes a JSON column (text or bytes) into dest. NULL leaves dest untouched.
func ScanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	default:
		return fmt.Errorf("dbtypes: unsupported JSON scan type %T", src)
	}
}

// ValueJSON encodes v as a JSON string column value.
func ValueJSON(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
