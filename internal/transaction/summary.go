package transaction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Summary keys read by the renderer
const (
	KeySubtotal  = "SUBTOTAL"
	KeyDiscounts = "DISCOUNT(S)"
	KeyTotalDue  = "TOTAL DUE"
	KeyChange    = "CHANGE"
	PrefixTax    = "TAX"
)

type SummaryEntry struct {
	Key   string
	Value float64
}

// SummaryMap is an insertion-ordered key/value list. It encodes as a
// JSON object with keys in insertion order.
type SummaryMap []SummaryEntry

// Set replaces an existing key in place or appends a new one
func (m *SummaryMap) Set(key string, value float64) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, SummaryEntry{Key: key, Value: value})
}

func (m SummaryMap) Get(key string) (float64, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return 0, false
}

// FirstWithPrefix returns the value of the earliest key starting with prefix
func (m SummaryMap) FirstWithPrefix(prefix string) (float64, bool) {
	for _, e := range m {
		if strings.HasPrefix(e.Key, prefix) {
			return e.Value, true
		}
	}
	return 0, false
}

func (m SummaryMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *SummaryMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("summary: expected object, got %v", tok)
	}

	out := SummaryMap{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("summary: expected key, got %v", tok)
		}
		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("summary: value for %q: %w", key, err)
		}
		out.Set(key, value)
	}
	*m = out
	return nil
}
