package stanza

import (
	"encoding/json"
	"strings"
)

// Element is one child of a stanza. Key is the Clark-notation name
// "{namespace}local"; Value is its text content.
type Element struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Stanza is a decoded inbound stanza.
type Stanza struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	Value      []Element         `json:"value"`
}

// Attr returns the named attribute or "" when absent.
func (s Stanza) Attr(name string) string {
	if s.Attributes == nil {
		return ""
	}
	return s.Attributes[name]
}

// SplitKey splits "{ns}local" into local and ns. A key without a leading
// "{ns}" block is returned whole with an empty namespace.
func SplitKey(key string) (local, ns string) {
	if !strings.HasPrefix(key, "{") {
		return key, ""
	}
	end := strings.Index(key, "}")
	if end < 0 {
		return key, ""
	}
	return key[end+1:], key[1:end]
}

// UnmarshalJSON decodes a null value as "".
func (e *Element) UnmarshalJSON(b []byte) error {
	var raw struct {
		Key   string  `json:"key"`
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Key = raw.Key
	if raw.Value != nil {
		e.Value = *raw.Value
	}
	return nil
}
