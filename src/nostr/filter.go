package nostr

import "encoding/json"

// Filter is a subscription filter (NIP-01). Empty constraint sets are
// unconstrained; since/until of 0 are unset. An event matches iff every
// non-empty constraint holds.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   int64
	Until   int64
	Limit   int
}

// Matches reports whether the event satisfies every constraint of the filter.
func (f *Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && e.CreatedAt > f.Until {
		return false
	}

	for name, accepted := range f.Tags {
		match := false
		for _, v := range e.TagValues(name) {
			if containsString(accepted, v) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	return true
}

// MatchesAny reports whether the event matches at least one of the filters.
// An empty filter list matches nothing.
func MatchesAny(filters []Filter, e *Event) bool {
	for i := range filters {
		if filters[i].Matches(e) {
			return true
		}
	}
	return false
}

// filterJSON is the wire form of a Filter. Tag constraints travel as
// "#"-prefixed keys mapping to value arrays, which rules out static struct
// tags, hence the custom marshaling below.
type filterJSON struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Since   int64    `json:"since,omitempty"`
	Until   int64    `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// UnmarshalJSON parses the NIP-01 filter object, collecting "#"-prefixed keys
// into the Tags map.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var fixed filterJSON
	if err := json.Unmarshal(data, &fixed); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	tags := map[string][]string{}
	for key, value := range raw {
		if len(key) < 2 || key[0] != '#' {
			continue
		}
		var values []string
		if err := json.Unmarshal(value, &values); err != nil {
			continue
		}
		tags[key[1:]] = values
	}
	if len(tags) == 0 {
		tags = nil
	}

	*f = Filter{
		IDs:     fixed.IDs,
		Authors: fixed.Authors,
		Kinds:   fixed.Kinds,
		Tags:    tags,
		Since:   fixed.Since,
		Until:   fixed.Until,
		Limit:   fixed.Limit,
	}
	return nil
}

// MarshalJSON produces the NIP-01 filter object with "#"-prefixed tag keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	obj := map[string]interface{}{}
	if len(f.IDs) > 0 {
		obj["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		obj["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		obj["kinds"] = f.Kinds
	}
	if f.Since > 0 {
		obj["since"] = f.Since
	}
	if f.Until > 0 {
		obj["until"] = f.Until
	}
	if f.Limit > 0 {
		obj["limit"] = f.Limit
	}
	for name, values := range f.Tags {
		obj["#"+name] = values
	}
	return json.Marshal(obj)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, item := range list {
		if item == n {
			return true
		}
	}
	return false
}
