package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
)

// PayloadField is one named value of an item payload.
type PayloadField struct {
	Name  string
	Value string
}

// Payload keeps the field order the item was provisioned with.
type Payload []PayloadField

func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return append(Payload(nil), p...)
}

// MarshalJSON encodes the payload as a JSON object in field order.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	parsed, err := ParsePayload(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePayload decodes a flat JSON object keeping key order. Scalar values that are
// not strings are kept in their JSON text form (true, 12, null).
func ParsePayload(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: payload must be a JSON object", domainerrors.ErrInvalidPayload)
	}

	payload := make(Payload, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected key %v", domainerrors.ErrInvalidPayload, keyTok)
		}

		valueTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
		}
		var value string
		switch v := valueTok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = fmt.Sprintf("%t", v)
		case nil:
			value = "null"
		default:
			return nil, fmt.Errorf("%w: field %q must be a scalar", domainerrors.ErrInvalidPayload, key)
		}
		payload = append(payload, PayloadField{Name: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after payload object", domainerrors.ErrInvalidPayload)
	}
	return payload, nil
}
