package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
)

// Upstream top-level keys
const (
	keyCommand            = "CMD"
	keyOperation          = "operation"
	keyTimestamp          = "timestamp"
	keyMetaData           = "metaData"
	keyCartChangeTrail    = "cartChangeTrail"
	keyPaymentSummary     = "paymentSummary"
	keyTransactionSummary = "transactionSummary"
)

// ErrUnrecognized is returned for well-formed JSON that carries no known key
var ErrUnrecognized = poserrors.Parse("unrecognized record", nil)

// Parse decodes one message body into its record variant. A message
// carries one variant; when several keys are present the first of CMD,
// metaData, cartChangeTrail, paymentSummary, transactionSummary wins.
func Parse(body string) (Record, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return nil, poserrors.Parse("invalid JSON", err)
	}

	if cmd, ok := obj[keyCommand]; ok {
		return parseCommand(obj, AsString(cmd))
	}

	if raw, ok := obj[keyMetaData]; ok && raw != nil {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, poserrors.Parse("metaData is not an object", nil)
		}
		meta := Meta{Fields: make(map[string]string, len(fields))}
		for k, v := range fields {
			meta.Fields[k] = AsString(v)
		}
		return meta, nil
	}

	if raw, ok := obj[keyCartChangeTrail]; ok && raw != nil {
		entries, err := asObjects(raw)
		if err != nil {
			return nil, poserrors.Parse("invalid cartChangeTrail", err)
		}
		change := CartChange{Lines: make([]CartLine, 0, len(entries))}
		for _, e := range entries {
			price, _ := AsFloat(e["price"])
			qty := 1
			if q, ok := AsFloat(e["quantity"]); ok && math.Abs(q) <= math.MaxInt32 {
				qty = int(q)
			}
			change.Lines = append(change.Lines, CartLine{
				EventType: AsString(e["eventType"]),
				ItemName:  AsString(e["itemName"]),
				Price:     price,
				Quantity:  qty,
			})
		}
		return change, nil
	}

	if raw, ok := obj[keyPaymentSummary]; ok && raw != nil {
		lines, err := summaryLines(raw)
		if err != nil {
			return nil, poserrors.Parse("invalid paymentSummary", err)
		}
		return PaymentSummary{Lines: lines}, nil
	}

	if raw, ok := obj[keyTransactionSummary]; ok && raw != nil {
		lines, err := summaryLines(raw)
		if err != nil {
			return nil, poserrors.Parse("invalid transactionSummary", err)
		}
		return TransactionSummary{Lines: lines, Timestamp: AsString(obj[keyTimestamp])}, nil
	}

	return nil, ErrUnrecognized
}

func parseCommand(obj map[string]any, name string) (Record, error) {
	switch name {
	case CmdStartTransaction:
		return CycleStart{Operation: AsString(obj[keyOperation])}, nil
	case CmdEndTransaction:
		return CycleEnd{}, nil
	case CmdNoSale, CmdPaidOut, CmdCashDrop:
		amount, _ := AsFloat(obj["amount"])
		return CashCommand{
			Name:         name,
			Operator:     AsString(obj["operator"]),
			OperatorName: AsString(obj["operatorName"]),
			Terminal:     AsString(obj["terminal"]),
			Sequence:     AsString(obj["sequence"]),
			DateTime:     AsString(obj["datetime"]),
			Amount:       amount,
		}, nil
	default:
		return nil, poserrors.Parse(fmt.Sprintf("unknown command %q", name), nil)
	}
}

func decodeObject(body string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("top-level value is not an object")
	}
	return obj, nil
}

// asObjects accepts an object, an array of objects, or a JSON string
// holding either.
func asObjects(raw any) ([]map[string]any, error) {
	if s, ok := raw.(string); ok {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		var inner any
		if err := dec.Decode(&inner); err != nil {
			return nil, err
		}
		raw = inner
	}

	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected %T", raw)
	}
}

func summaryLines(raw any) ([]SummaryLine, error) {
	entries, err := asObjects(raw)
	if err != nil {
		return nil, err
	}
	lines := make([]SummaryLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, SummaryLine{
			Description: AsString(e["description"]),
			Details:     AsString(e["details"]),
		})
	}
	return lines, nil
}

// AsString renders a decoded JSON scalar as text. nil becomes "".
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// AsFloat coerces a JSON number or numeric string. The bool is false
// and the value 0 when it is absent, not numeric, or not finite.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		return finite(t.Float64())
	case float64:
		return finite(t, nil)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		return finite(strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64))
	default:
		return 0, false
	}
}

// finite rejects parse errors, NaN and infinities
func finite(f float64, err error) (float64, bool) {
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseMoney reads a details string like "$1,234.50". Unparsable or
// non-finite input is 0.
func ParseMoney(details string) float64 {
	s := strings.NewReplacer("$", "", ",", "").Replace(details)
	f, _ := finite(strconv.ParseFloat(strings.TrimSpace(s), 64))
	return f
}
