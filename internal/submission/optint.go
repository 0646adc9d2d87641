package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// OptInt is an optional integer that clients send as a number, a numeric
// string, an empty string or null. Empty and null decode to absent.
type OptInt struct {
	v *int
}

func (o OptInt) Ptr() *int {
	if o.v == nil {
		return nil
	}
	v := *o.v
	return &v
}

func (o *OptInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		o.v = nil
		return nil
	}

	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			o.v = nil
			return nil
		}
	}

	if n, err := strconv.Atoi(s); err == nil {
		o.v = &n
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return errors.New("not an integer: " + s)
	}
	n := int(f)
	o.v = &n
	return nil
}
