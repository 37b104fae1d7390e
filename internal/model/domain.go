package model

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Domain is a usage category within which models are ranked independently.
type Domain string

const (
	DomainText                 Domain = "text"
	DomainCode                 Domain = "code"
	DomainMath                 Domain = "math"
	DomainCreativeWriting      Domain = "creative_writing"
	DomainHardPrompts          Domain = "hard_prompts"
	DomainInstructionFollowing Domain = "instruction_following"
	DomainVision               Domain = "vision"
	DomainLongerQuery          Domain = "longer_query"
)

// Domains lists every current domain in display order.
var Domains = []Domain{
	DomainText,
	DomainCode,
	DomainMath,
	DomainCreativeWriting,
	DomainHardPrompts,
	DomainInstructionFollowing,
	DomainVision,
	DomainLongerQuery,
}

// DomainAliasesV1 records the 2025 domain rename: rows written before the
// migration still carry the legacy key. Never edit an existing version;
// add DomainAliasesV2 and point DomainAliases at it.
var DomainAliasesV1 = map[string]Domain{
	"overall": DomainText,
	"coding":  DomainCode,
}

// DomainAliases is the alias table in effect.
var DomainAliases = DomainAliasesV1

// IsKnown reports whether d is a current domain key.
func (d Domain) IsKnown() bool {
	for _, k := range Domains {
		if k == d {
			return true
		}
	}
	return false
}

// ResolveDomain maps a current or legacy domain key onto the current key.
func ResolveDomain(s string) (Domain, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if d := Domain(key); d.IsKnown() {
		return d, nil
	}
	if d, ok := DomainAliases[key]; ok {
		return d, nil
	}
	return "", eris.Errorf("model: unknown domain %q", s)
}

// DomainQueryKeys returns the stored keys that belong to d: the current key
// first, then every legacy key aliased onto it (sorted).
func DomainQueryKeys(d Domain) []string {
	keys := []string{string(d)}
	var legacy []string
	for old, cur := range DomainAliases {
		if cur == d {
			legacy = append(legacy, old)
		}
	}
	sort.Strings(legacy)
	return append(keys, legacy...)
}
