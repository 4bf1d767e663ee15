package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known output fields.
const (
	FieldExpression          = "Alpha Expression"
	FieldReasoning           = "Reasoning"
	FieldConstraintChecklist = "Constraint Checklist"
)

// Field is one named value of a structured answer.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Output is a structured model answer with its fields in answer order.
type Output struct {
	Fields []Field
}

// Get returns the value of name.
func (o Output) Get(name string) (string, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value of name or appends it.
func (o *Output) Set(name, value string) {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			o.Fields[i].Value = value
			return
		}
	}
	o.Fields = append(o.Fields, Field{Name: name, Value: value})
}

// Without returns a copy with the named fields removed.
func (o Output) Without(names ...string) Output {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := Output{Fields: make([]Field, 0, len(o.Fields))}
	for _, f := range o.Fields {
		if !drop[f.Name] {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// Expression returns the proposed alpha expression.
func (o Output) Expression() string {
	v, _ := o.Get(FieldExpression)
	return v
}

// Reasoning returns the model's explanation.
func (o Output) Reasoning() string {
	v, _ := o.Get(FieldReasoning)
	return v
}

// ParseOutput decodes a JSON object keeping its key order. Non-string
// values are kept as compact JSON text.
func ParseOutput(data []byte) (Output, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Output{}, fmt.Errorf("parse model output: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Output{}, fmt.Errorf("parse model output: want object, got %v", tok)
	}

	var out Output
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Output{}, fmt.Errorf("parse model output: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Output{}, fmt.Errorf("parse model output field %q: %w", key, err)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out.Set(key, s)
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return Output{}, fmt.Errorf("parse model output field %q: %w", key, err)
		}
		out.Set(key, buf.String())
	}
	if _, err := dec.Token(); err != nil {
		return Output{}, fmt.Errorf("parse model output: %w", err)
	}
	return out, nil
}

// MarshalJSON writes the fields as one JSON object in order.
func (o Output) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range o.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (o *Output) UnmarshalJSON(data []byte) error {
	parsed, err := ParseOutput(data)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
