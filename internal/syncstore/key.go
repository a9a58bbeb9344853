package syncstore

import (
	"net/url"
	"strconv"
	"strings"
)

type KeyKind string

const (
	KindList      KeyKind = "list"
	KindEntity    KeyKind = "entity"
	KindSingleton KeyKind = "singleton"
	KindMutation  KeyKind = "mutation"
)

// QueryKey identifies one cached request. Two keys with the same resource,
// kind, id, page, limit and non-empty filters are the same key regardless of
// filter insertion order.
type QueryKey struct {
	Resource string
	Kind     KeyKind
	ID       string
	Page     int
	Limit    int
	Filters  map[string]string
}

func ListKey(resource string, page, limit int, filters map[string]string) QueryKey {
	return QueryKey{Resource: resource, Kind: KindList, Page: page, Limit: limit, Filters: filters}
}

func EntityKey(resource, id string) QueryKey {
	return QueryKey{Resource: resource, Kind: KindEntity, ID: id}
}

func SingletonKey(resource string) QueryKey {
	return QueryKey{Resource: resource, Kind: KindSingleton}
}

// MutationKey is the observable key of a write; target is usually the entity id.
func MutationKey(name, target string) QueryKey {
	return QueryKey{Resource: name, Kind: KindMutation, ID: target}
}

func (k QueryKey) Filter(name string) string {
	return k.Filters[name]
}

func (k QueryKey) String() string {
	var b strings.Builder
	b.WriteString(k.Resource)
	b.WriteByte(':')
	b.WriteString(string(k.Kind))
	if k.ID != "" {
		b.WriteByte('/')
		b.WriteString(k.ID)
	}
	values := url.Values{}
	for name, value := range k.Filters {
		if value == "" {
			continue
		}
		values.Set(name, value)
	}
	if k.Page != 0 {
		values.Set("page", strconv.Itoa(k.Page))
	}
	if k.Limit != 0 {
		values.Set("limit", strconv.Itoa(k.Limit))
	}
	if encoded := values.Encode(); encoded != "" {
		b.WriteByte('?')
		b.WriteString(encoded)
	}
	return b.String()
}
