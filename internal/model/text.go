package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Text is a localized string keyed by language tag. The empty key holds the
// untranslated value, used when content is authored as a plain JSON string.
type Text map[string]string

// Plain builds an untranslated Text.
func Plain(s string) Text {
	return Text{"": s}
}

// Get returns the best translation for lang: exact tag, then base language,
// then the untranslated value, then English, then the first language in
// alphabetical order.
func (t Text) Get(lang string) string {
	if len(t) == 0 {
		return ""
	}
	if s, ok := t[lang]; ok {
		return s
	}
	if base, _, found := strings.Cut(lang, "-"); found {
		if s, ok := t[base]; ok {
			return s
		}
	}
	if s, ok := t[""]; ok {
		return s
	}
	if s, ok := t["en"]; ok {
		return s
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return t[keys[0]]
}

// IsZero reports whether no translation is set.
func (t Text) IsZero() bool {
	for _, s := range t {
		if s != "" {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts either a plain string or an object of translations.
func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Plain(s)
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("localized text must be a string or an object: %w", err)
	}
	*t = m
	return nil
}

// Value stores Text as a JSON object.
func (t Text) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads Text from a JSON column.
func (t *Text) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into Text", src)
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*t = m
	return nil
}
