package youtubeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Bootstrap is the session data scraped from a watch page.
type Bootstrap struct {
	APIKey         string          `json:"apiKey"`
	RequestContext json.RawMessage `json:"requestContext"`
	InitialData    json.RawMessage `json:"initialData"`
}

// Session returns the poll credentials carried by b.
func (b *Bootstrap) Session() Session {
	return Session{APIKey: b.APIKey, RequestContext: b.RequestContext}
}

const liveChatTitle = "Live chat"

// member is one key/value pair of a decoded JSON object.
type member struct {
	Key   string
	Value any
}

// object is a decoded JSON object with its members in document order.
type object []member

// Get returns the first value stored under key.
func (o object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// decodeTree decodes raw JSON into generic values. Objects become object
// values that keep document order; numbers stay verbatim.
func decodeTree(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, false
	}
	return v, true
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		var obj object
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, member{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		if obj == nil {
			obj = object{}
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// Traverse walks v depth-first, calling fn with every (value, key) pair before
// descending into it. Object members are visited in document order and array
// elements use their index as key. The first result fn accepts is returned.
func Traverse(v any, fn func(value any, key string) (string, bool)) (string, bool) {
	switch node := v.(type) {
	case object:
		for _, m := range node {
			if res, ok := fn(m.Value, m.Key); ok {
				return res, true
			}
			if res, ok := Traverse(m.Value, fn); ok {
				return res, true
			}
		}
	case []any:
		for i, child := range node {
			if res, ok := fn(child, strconv.Itoa(i)); ok {
				return res, true
			}
			if res, ok := Traverse(child, fn); ok {
				return res, true
			}
		}
	}
	return "", false
}

func asObject(v any) object {
	o, _ := v.(object)
	return o
}

func field(v any, key string) any {
	val, _ := asObject(v).Get(key)
	return val
}

func stringField(v any, key string) string {
	s, _ := field(v, key).(string)
	return s
}

// continuationToken reads {<tag>: {continuation: "..."}} from a generic value.
func continuationToken(v any) string {
	for _, m := range asObject(v) {
		if tok := stringField(m.Value, "continuation"); tok != "" {
			return tok
		}
	}
	return ""
}

// FindLiveChatContinuation locates the node titled "Live chat" in a page's
// initial data and returns its continuation token. found reports whether a
// matching node with a continuation object existed at all.
func FindLiveChatContinuation(initialData json.RawMessage) (token string, found bool) {
	tree, ok := decodeTree(initialData)
	if !ok {
		return "", false
	}
	var cont any
	_, found = Traverse(tree, func(value any, _ string) (string, bool) {
		m, ok := value.(object)
		if !ok || stringField(m, "title") != liveChatTitle {
			return "", false
		}
		c, ok := m.Get("continuation")
		if _, isObj := c.(object); !ok || !isObj {
			return "", false
		}
		cont = c
		return "match", true
	})
	if !found {
		return "", false
	}
	return continuationToken(cont), true
}

// FindChannelID returns the browse id of the first channel navigation endpoint.
func FindChannelID(initialData json.RawMessage) string {
	tree, ok := decodeTree(initialData)
	if !ok {
		return ""
	}
	id, _ := Traverse(tree, func(value any, key string) (string, bool) {
		if key != "channelNavigationEndpoint" {
			return "", false
		}
		id := stringField(field(value, "browseEndpoint"), "browseId")
		return id, id != ""
	})
	return id
}

// FindLiveVideoID returns the video id of the page's current video endpoint.
func FindLiveVideoID(initialData json.RawMessage) string {
	tree, ok := decodeTree(initialData)
	if !ok {
		return ""
	}
	id, _ := Traverse(tree, func(value any, key string) (string, bool) {
		if key != "currentVideoEndpoint" {
			return "", false
		}
		id := stringField(field(value, "watchEndpoint"), "videoId")
		return id, id != ""
	})
	return id
}
