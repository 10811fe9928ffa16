package device

import (
	"fmt"
	"strconv"
	"strings"
)

// namePrefix introduces a NAME in a lookup rule.
const namePrefix = "ID:"

// Rule is a parsed device lookup rule.
type Rule struct {
	ByName  bool
	Address uint8
	Name    uint64
}

// ParseRule parses a lookup rule: a decimal bus address ("9") or a
// hexadecimal NAME prefixed with "ID:" ("ID:00A3F2C01B000001"). An optional
// 0x after the prefix is accepted. ok is false for anything else.
func ParseRule(rule string) (Rule, bool) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return Rule{}, false
	}

	if len(rule) > len(namePrefix) && strings.EqualFold(rule[:len(namePrefix)], namePrefix) {
		digits := rule[len(namePrefix):]
		if len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
			digits = digits[2:]
		}
		name, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return Rule{}, false
		}
		return Rule{ByName: true, Name: name}, true
	}

	address, err := strconv.ParseUint(rule, 10, 8)
	if err != nil || address > maxAddress {
		return Rule{}, false
	}
	return Rule{Address: uint8(address)}, true
}

// String renders the rule in its canonical form.
func (r Rule) String() string {
	if r.ByName {
		return namePrefix + FormatName(r.Name)
	}
	return strconv.Itoa(int(r.Address))
}

// Lookup is FindByRule for callers that need to tell a malformed rule from a
// missing node.
func (r *Registry) Lookup(rule string) (Device, error) {
	parsed, ok := ParseRule(rule)
	if !ok {
		return Device{}, fmt.Errorf("%w: %q", ErrInvalidRule, rule)
	}

	var (
		d     Device
		found bool
	)
	if parsed.ByName {
		d, found = r.FindByName(parsed.Name)
	} else {
		d, found = r.FindByAddress(parsed.Address)
	}
	if !found {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, parsed)
	}
	return d, nil
}
