package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
)

func frame(body string) string {
	return fmt.Sprintf("mlen=%d\n%s\n", len(body), body)
}

func TestFrameReaderNext(t *testing.T) {
	stream := "garbage line\n" +
		frame(`{"CMD":"StartTransaction"}`) +
		"  mlen=2  \r\n{}" +
		frame(`{"metaData":{"sequenceNumber":"42"}}`)

	fr := NewFrameReader(strings.NewReader(stream), 0)

	body, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"CMD":"StartTransaction"}`, body)

	body, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, `{}`, body)

	body, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"metaData":{"sequenceNumber":"42"}}`, body)

	_, err = fr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFrameReaderTruncatedBody(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("mlen=50\n{\"CMD\""), 0)
	_, err := fr.Next()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestFrameReaderOversized(t *testing.T) {
	stream := frame(strings.Repeat("x", 64)) + frame(`{"CMD":"EndTransaction"}`)
	fr := NewFrameReader(strings.NewReader(stream), 32)

	_, err := fr.Next()
	require.Error(t, err)
	var tooLarge *FrameTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, 64, tooLarge.Size)
	assert.True(t, poserrors.IsParseError(err))

	body, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"CMD":"EndTransaction"}`, body)
}

func TestDecodeBodyLatin1Fallback(t *testing.T) {
	assert.Equal(t, "café", DecodeBody([]byte("café")))
	assert.Equal(t, `{"itemName":"Café"}`, DecodeBody([]byte{'{', '"', 'i', 't', 'e', 'm', 'N', 'a', 'm', 'e', '"', ':', '"', 'C', 'a', 'f', 0xE9, '"', '}'}))
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		body string
		kind Kind
	}{
		{`{"CMD":"StartTransaction"}`, KindCycleStart},
		{`{"CMD":"EndTransaction"}`, KindCycleEnd},
		{`{"CMD":"PaidOut","amount":50.00}`, KindCashCommand},
		{`{"metaData":{"sequenceNumber":42}}`, KindMeta},
		{`{"cartChangeTrail":{"itemName":"Coffee","price":2.00,"quantity":1}}`, KindCartChange},
		{`{"paymentSummary":[{"description":"CASH","details":"$2.00"}]}`, KindPaymentSummary},
		{`{"transactionSummary":[{"description":"TOTAL DUE","details":"$2.00"}]}`, KindTransactionSummary},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rec, err := Parse(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, rec.Kind())
		})
	}
}

func TestParseCommandPrecedence(t *testing.T) {
	rec, err := Parse(`{"CMD":"StartTransaction","operation":"refund","metaData":{"storeId":"1"}}`)
	require.NoError(t, err)
	assert.Equal(t, CycleStart{Operation: "refund"}, rec)
}

func TestParseCashCommand(t *testing.T) {
	rec, err := Parse(`{"CMD":"PaidOut","amount":"50.00","operator":"OP5","sequence":77,"datetime":"2024-03-01T10:00:00"}`)
	require.NoError(t, err)

	cmd := rec.(CashCommand)
	assert.Equal(t, CmdPaidOut, cmd.Name)
	assert.Equal(t, 50.0, cmd.Amount)
	assert.Equal(t, "OP5", cmd.Operator)
	assert.Equal(t, "77", cmd.Sequence)
	assert.Equal(t, "", cmd.Terminal)
}

func TestParseCartChangeShapes(t *testing.T) {
	shapes := []string{
		`{"cartChangeTrail":[{"eventType":"addLineItem","itemName":"Coffee","price":"2.00"},{"eventType":"voidLineItem","itemName":"Coffee","price":2,"quantity":"x"}]}`,
		`{"cartChangeTrail":"[{\"eventType\":\"addLineItem\",\"itemName\":\"Coffee\",\"price\":2.00},{\"eventType\":\"voidLineItem\",\"itemName\":\"Coffee\",\"price\":2}]"}`,
	}

	for i, body := range shapes {
		rec, err := Parse(body)
		require.NoError(t, err, "shape %d", i)

		lines := rec.(CartChange).Lines
		require.Len(t, lines, 2)
		assert.Equal(t, "Coffee", lines[0].ItemName)
		assert.Equal(t, 2.0, lines[0].Price)
		assert.Equal(t, 1, lines[0].Quantity)
		assert.False(t, lines[0].IsVoid())
		assert.True(t, lines[1].IsVoid())
		assert.Equal(t, 1, lines[1].Quantity)
	}
}

func TestParseCartChangeDefaults(t *testing.T) {
	rec, err := Parse(`{"cartChangeTrail":{"itemName":"Bag"}}`)
	require.NoError(t, err)
	line := rec.(CartChange).Lines[0]
	assert.Equal(t, 0.0, line.Price)
	assert.Equal(t, 1, line.Quantity)
}

func TestParseErrors(t *testing.T) {
	for _, body := range []string{`{"CMD":`, `[1,2]`, `{"CMD":"Reboot"}`, `{"metaData":"x"}`, `{"cartChangeTrail":"not json"}`} {
		_, err := Parse(body)
		require.Error(t, err, body)
		assert.True(t, poserrors.IsParseError(err), body)
	}

	_, err := Parse(`{"heartbeat":true}`)
	assert.Equal(t, ErrUnrecognized, err)
}

func TestParseMoney(t *testing.T) {
	assert.Equal(t, 1234.5, ParseMoney("$1,234.50"))
	assert.Equal(t, -1.0, ParseMoney("-$1.00"))
	assert.Equal(t, 0.0, ParseMoney("N/A"))
	assert.Equal(t, 0.0, ParseMoney(""))
	assert.Equal(t, 0.0, ParseMoney("NaN"))
	assert.Equal(t, 0.0, ParseMoney("$inf"))
	assert.Equal(t, 0.0, ParseMoney("1e400"))
}

func TestAsFloat(t *testing.T) {
	f, ok := AsFloat("$3.25")
	assert.True(t, ok)
	assert.Equal(t, 3.25, f)

	_, ok = AsFloat(nil)
	assert.False(t, ok)
	_, ok = AsFloat("abc")
	assert.False(t, ok)

	for _, v := range []any{"NaN", "inf", "-Infinity", "1e400", json.Number("1e400")} {
		f, ok := AsFloat(v)
		assert.False(t, ok, v)
		assert.Zero(t, f, v)
	}
}

func TestParseCartChangeNonFiniteValues(t *testing.T) {
	rec, err := Parse(`{"cartChangeTrail":[{"eventType":"addLineItem","itemName":"Tea","price":"NaN","quantity":1e300}]}`)
	require.NoError(t, err)
	lines := rec.(CartChange).Lines
	require.Len(t, lines, 1)
	assert.Zero(t, lines[0].Price)
	assert.Equal(t, 1, lines[0].Quantity)
}
