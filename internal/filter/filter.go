// Package filter implements the keyword rule engine: an ordered list of
// boolean rules evaluated against an item's combined text. Matching is plain
// case-folded substring containment so existing rule configurations behave
// identically across languages.
package filter

import (
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"newshound/internal/feed"
)

// Actions a rule may resolve to.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Term is one element of an all_of/any_of/none_of list. It is either a
// single keyword or an OR-group of keywords; a group is satisfied when any
// member appears in the text.
type Term struct {
	Keyword string
	Group   []string
}

// UnmarshalYAML accepts either a scalar keyword or a nested string list.
func (t *Term) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var kw string
		if err := value.Decode(&kw); err != nil {
			return err
		}
		*t = Term{Keyword: kw}
		return nil
	case yaml.SequenceNode:
		var group []string
		if err := value.Decode(&group); err != nil {
			return err
		}
		*t = Term{Group: group}
		return nil
	default:
		return fmt.Errorf("filter term must be a keyword or a list of keywords")
	}
}

// matchedIn reports whether the term is present in the lowercased text.
func (t Term) matchedIn(lowered string) bool {
	if t.Group == nil {
		return containsFold(lowered, t.Keyword)
	}
	for _, kw := range t.Group {
		if containsFold(lowered, kw) {
			return true
		}
	}
	return false
}

func containsFold(lowered, keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return false
	}
	return strings.Contains(lowered, kw)
}

// Rule is a single compound keyword rule.
type Rule struct {
	Name    string `yaml:"name"`
	Action  string `yaml:"action"`
	AllOf   []Term `yaml:"all_of"`
	AnyOf   []Term `yaml:"any_of"`
	NoneOf  []Term `yaml:"none_of"`
	Enabled bool   `yaml:"enabled"`
}

// UnmarshalYAML decodes a rule with enabled defaulting to true when the key
// is absent.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	type rawRule Rule
	tmp := rawRule{Enabled: true}
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*r = Rule(tmp)
	return nil
}

// Matches reports whether the rule's predicate holds for the text.
// Empty term lists are vacuously satisfied.
func (r *Rule) Matches(text string) bool {
	if !r.Enabled {
		return false
	}
	lowered := strings.ToLower(text)
	for _, term := range r.AllOf {
		if !term.matchedIn(lowered) {
			return false
		}
	}
	if len(r.AnyOf) > 0 {
		any := false
		for _, term := range r.AnyOf {
			if term.matchedIn(lowered) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	for _, term := range r.NoneOf {
		if term.matchedIn(lowered) {
			return false
		}
	}
	return true
}

// Validate rejects malformed rules at load time rather than evaluation time.
func (r *Rule) Validate() error {
	if r.Action != ActionAllow && r.Action != ActionDeny {
		return fmt.Errorf("rule %q: action must be %q or %q, got %q", r.Name, ActionAllow, ActionDeny, r.Action)
	}
	for listName, terms := range map[string][]Term{"all_of": r.AllOf, "any_of": r.AnyOf, "none_of": r.NoneOf} {
		for _, term := range terms {
			if term.Group != nil && len(term.Group) == 0 {
				return fmt.Errorf("rule %q: empty keyword group in %s", r.Name, listName)
			}
		}
	}
	return nil
}

// RuleSet is the ordered rule list plus the fallback action. It is loaded
// once from configuration and immutable afterwards.
type RuleSet struct {
	Enabled       bool   `yaml:"enabled"`
	DefaultAction string `yaml:"default_action"`
	Rules         []Rule `yaml:"rules"`
}

// Validate checks the set and every rule in it.
func (rs *RuleSet) Validate() error {
	if rs.DefaultAction == "" {
		rs.DefaultAction = ActionAllow
	}
	if rs.DefaultAction != ActionAllow && rs.DefaultAction != ActionDeny {
		return fmt.Errorf("filters: default_action must be %q or %q, got %q", ActionAllow, ActionDeny, rs.DefaultAction)
	}
	for i := range rs.Rules {
		if rs.Rules[i].Name == "" {
			rs.Rules[i].Name = "unnamed"
		}
		if rs.Rules[i].Action == "" {
			rs.Rules[i].Action = ActionAllow
		}
		if err := rs.Rules[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Active reports whether at least one rule is enabled. The AI prefilter's
// activation condition depends on this together with Enabled.
func (rs *RuleSet) Active() bool {
	if !rs.Enabled {
		return false
	}
	for i := range rs.Rules {
		if rs.Rules[i].Enabled {
			return true
		}
	}
	return false
}

// EnabledRules returns the enabled rules in configured order.
func (rs *RuleSet) EnabledRules() []Rule {
	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Evaluate walks the rules in order and returns the action of the first
// matching rule along with its name and index. When nothing matches it
// returns the default action with matched=false.
func (rs *RuleSet) Evaluate(text string) (action, ruleName string, ruleIndex int, matched bool) {
	for idx := range rs.Rules {
		if rs.Rules[idx].Matches(text) {
			return rs.Rules[idx].Action, rs.Rules[idx].Name, idx, true
		}
	}
	return rs.DefaultAction, "", -1, false
}

// Apply keeps the items whose resolved action is allow and annotates them
// with the matched rule's name and index for downstream grouping. A disabled
// set or an empty rule list is an identity passthrough.
func (rs *RuleSet) Apply(items []*feed.Item) []*feed.Item {
	if !rs.Enabled || len(rs.Rules) == 0 {
		return items
	}
	allowed := make([]*feed.Item, 0, len(items))
	for _, item := range items {
		action, name, idx, matched := rs.Evaluate(item.CombinedText())
		if action != ActionAllow {
			slog.Debug("keyword filter dropped item", "source", item.Source, "title", item.Title, "rule", name)
			continue
		}
		if matched {
			raw := item.EnsureRaw()
			raw[feed.RawMatchedRule] = name
			raw[feed.RawMatchedRuleIndex] = idx
		}
		allowed = append(allowed, item)
	}
	slog.Info("keyword filter applied", "in", len(items), "kept", len(allowed))
	return allowed
}
