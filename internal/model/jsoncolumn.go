package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Value implements driver.Valuer.
func (r Roster) Value() (driver.Value, error) {
	return marshalColumn(r, len(r))
}

// Scan implements sql.Scanner.
func (r *Roster) Scan(src any) error {
	return unmarshalColumn(src, r)
}

// Value implements driver.Valuer.
func (l SubscriptionList) Value() (driver.Value, error) {
	return marshalColumn(l, len(l))
}

// Scan implements sql.Scanner.
func (l *SubscriptionList) Scan(src any) error {
	return unmarshalColumn(src, l)
}

// marshalColumn writes empty lists as "[]" so NOT NULL columns never receive "null".
func marshalColumn(v any, n int) (driver.Value, error) {
	if n == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalColumn(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column source type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
