package a2s

import (
	"fmt"
	"math"
)

// Rule is one server variable of an A2S_RULES response.
type Rule struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseRules decodes an A2S_RULES payload, starting at its 0x45 discriminant.
func ParseRules(data []byte) ([]Rule, error) {
	r := newReader(data)

	kind, err := r.uint8("response type")
	if err != nil {
		return nil, err
	}
	if kind != responseRules {
		return nil, fmt.Errorf("%w: expected rules 0x%02x, got 0x%02x", ErrInvalidResponse, responseRules, kind)
	}

	count, err := r.uint16("rule count")
	if err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, min(int(count), r.remaining()/2))
	for n := 0; n < int(count); n++ {
		var rule Rule
		if rule.Name, err = r.string("rule name"); err != nil {
			return nil, err
		}
		if rule.Value, err = r.string("rule value"); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// EncodeRules encodes rules as an A2S_RULES payload, without the single-packet header.
func EncodeRules(rules []Rule) ([]byte, error) {
	if len(rules) > math.MaxUint16 {
		return nil, fmt.Errorf("a2s: %d rules exceed the wire limit of %d", len(rules), math.MaxUint16)
	}

	w := &writer{}
	w.uint8(responseRules)
	w.uint16(uint16(len(rules)))

	for _, rule := range rules {
		w.string(rule.Name)
		w.string(rule.Value)
	}

	return w.bytes(), nil
}
