package parser

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Node is a read-only view over a decoded JSON value. Every accessor is
// total: looking up a missing key or indexing a non-list yields the zero
// Node, and the typed getters report whether a usable value was present.
type Node struct {
	v any
}

// Decode parses data into a Node. Numbers keep their literal form.
func Decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Node{}, err
	}
	return Node{v: v}, nil
}

// Get returns the value under key when n is an object.
func (n Node) Get(key string) Node {
	obj, ok := n.v.(map[string]any)
	if !ok {
		return Node{}
	}
	return Node{v: obj[key]}
}

// Path follows keys through nested objects.
func (n Node) Path(keys ...string) Node {
	cur := n
	for _, k := range keys {
		cur = cur.Get(k)
	}
	return cur
}

// IsObject reports whether n is a non-empty JSON object.
func (n Node) IsObject() bool {
	obj, ok := n.v.(map[string]any)
	return ok && len(obj) > 0
}

// List returns the elements when n is an array.
func (n Node) List() []Node {
	arr, ok := n.v.([]any)
	if !ok {
		return nil
	}
	out := make([]Node, len(arr))
	for i, item := range arr {
		out[i] = Node{v: item}
	}
	return out
}

// First returns the first element of an array.
func (n Node) First() Node {
	items := n.List()
	if len(items) == 0 {
		return Node{}
	}
	return items[0]
}

// Last returns the last element of an array.
func (n Node) Last() Node {
	items := n.List()
	if len(items) == 0 {
		return Node{}
	}
	return items[len(items)-1]
}

// Text returns a trimmed, non-empty string value.
func (n Node) Text() (string, bool) {
	s, ok := n.v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Scalar returns a trimmed, non-empty string or the literal of a number.
func (n Node) Scalar() (string, bool) {
	if num, ok := n.v.(json.Number); ok {
		return num.String(), true
	}
	return n.Text()
}

// Bool returns a boolean value.
func (n Node) Bool() (bool, bool) {
	b, ok := n.v.(bool)
	return b, ok
}

// Decimal coerces a number or numeric string into a decimal.
func (n Node) Decimal() (decimal.Decimal, bool) {
	switch v := n.v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// lookup is one attempt at resolving a field.
type lookup func(Node) (string, bool)

// firstOf returns the first resolvable value of the chain, or fallback.
func firstOf(n Node, fallback string, chain ...lookup) string {
	for _, attempt := range chain {
		if v, ok := attempt(n); ok {
			return v
		}
	}
	return fallback
}

// textAt resolves the trimmed string at a key path.
func textAt(keys ...string) lookup {
	return func(n Node) (string, bool) {
		return n.Path(keys...).Text()
	}
}

// scalarAt resolves a string or number at a key path.
func scalarAt(keys ...string) lookup {
	return func(n Node) (string, bool) {
		return n.Path(keys...).Scalar()
	}
}
