package story

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidDimension = errors.New("invalid cache key dimension")

const keySeparator = "|"

// Key identifies one generated batch of stories.
type Key string

func (k Key) String() string { return string(k) }

type Dimensions struct {
	Category  string
	Epoch     string
	ModelID   string
	Language  string
	StoryType string
}

func (d Dimensions) normalized() Dimensions {
	return Dimensions{
		Category:  strings.TrimSpace(d.Category),
		Epoch:     strings.TrimSpace(d.Epoch),
		ModelID:   strings.TrimSpace(d.ModelID),
		Language:  strings.TrimSpace(d.Language),
		StoryType: strings.TrimSpace(d.StoryType),
	}
}

// MakeKey escapes every dimension before joining, so a separator inside a
// dimension value cannot make two different tuples share a key.
func MakeKey(d Dimensions) (Key, error) {
	d = d.normalized()
	parts := []struct {
		name  string
		value string
	}{
		{"category", d.Category},
		{"epoch", d.Epoch},
		{"model", d.ModelID},
		{"language", d.Language},
		{"story type", d.StoryType},
	}

	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.value == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrInvalidDimension, p.name)
		}
		escaped = append(escaped, url.QueryEscape(p.value))
	}
	return Key(strings.Join(escaped, keySeparator)), nil
}

func MustKey(d Dimensions) Key {
	k, err := MakeKey(d)
	if err != nil {
		panic(err)
	}
	return k
}
