package request

import (
	"strconv"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// maxArrayIndex caps bracket indices so "items[999999999]" cannot force a
// giant allocation.
const maxArrayIndex = 10000

// pathToken is one step of a bracket path: a key, a numeric index, or the
// append marker "[]".
type pathToken struct {
	key   string
	index int
	kind  tokenKind
}

type tokenKind int

const (
	tokenKey tokenKind = iota
	tokenIndex
	tokenAppend
)

// parsePath splits a field key such as "user[name]", "items[0]", "items[]",
// "[2]" or "a[b][c]" into its token sequence.
func parsePath(key string) ([]pathToken, error) {
	var tokens []pathToken
	rest := key
	for rest != "" {
		if rest[0] == '[' {
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, status.Errorf(status.KindArgument, "invalid path %q: unterminated bracket", key)
			}
			content := rest[1:end]
			rest = rest[end+1:]
			switch {
			case content == "":
				tokens = append(tokens, pathToken{kind: tokenAppend})
			default:
				if idx, err := strconv.Atoi(content); err == nil && idx >= 0 {
					if idx > maxArrayIndex {
						return nil, status.Errorf(status.KindArgument,
							"array index %d exceeds maximum allowed (%d)", idx, maxArrayIndex)
					}
					tokens = append(tokens, pathToken{kind: tokenIndex, index: idx})
				} else {
					tokens = append(tokens, pathToken{kind: tokenKey, key: content})
				}
			}
			continue
		}
		end := strings.IndexAny(rest, "[]")
		if end < 0 {
			tokens = append(tokens, pathToken{kind: tokenKey, key: rest})
			rest = ""
			continue
		}
		if rest[end] == ']' {
			return nil, status.Errorf(status.KindArgument, "invalid path %q: unmatched ']'", key)
		}
		tokens = append(tokens, pathToken{kind: tokenKey, key: rest[:end]})
		rest = rest[end:]
	}
	if len(tokens) == 0 {
		return nil, status.Errorf(status.KindArgument, "invalid path: empty key")
	}
	return tokens, nil
}

// SetNested writes value into the JSON document at the bracket path given by
// key.  The document root is *root: an object by default, replaced by an
// array when the first path token is an index or append on an empty root.
//
// Merging is deep: objects merge recursively, arrays merge positionally
// (a non-null overlay element wins, longer arrays extend), and paths that
// contain an append token concatenate instead of overwriting.
func SetNested(root *interface{}, key string, value interface{}) error {
	if *root == nil {
		*root = map[string]interface{}{}
	}

	// Fast path: no brackets at all.
	if !strings.ContainsAny(key, "[]") {
		if obj, ok := (*root).(map[string]interface{}); ok {
			obj[key] = value
		}
		return nil
	}

	tokens, err := parsePath(key)
	if err != nil {
		return err
	}

	switch tokens[0].kind {
	case tokenIndex:
		return rootArraySet(root, tokens, value)
	case tokenAppend:
		return rootArrayAppend(root, tokens, value)
	}

	obj, ok := (*root).(map[string]interface{})
	if !ok {
		// Root already became an array; keyed paths no longer apply.
		return status.Errorf(status.KindArgument, "cannot set key %q on array root", key)
	}

	// "items[]" appends to an existing array under the key.
	if len(tokens) == 2 && tokens[1].kind == tokenAppend {
		first := tokens[0].key
		if existing, found := obj[first]; found {
			if arr, isArr := existing.([]interface{}); isArr {
				obj[first] = append(arr, value)
				return nil
			}
		} else {
			obj[first] = []interface{}{value}
			return nil
		}
	}

	hasAppend := false
	for _, t := range tokens {
		if t.kind == tokenAppend {
			hasAppend = true
			break
		}
	}

	nested := buildNested(tokens[1:], value)
	first := tokens[0].key
	if existing, found := obj[first]; found {
		merged := mergeDeep(existing, nested, hasAppend)
		obj[first] = merged
	} else {
		obj[first] = nested
	}
	return nil
}

func rootArraySet(root *interface{}, tokens []pathToken, value interface{}) error {
	arr := materializeArrayRoot(root)
	if arr == nil {
		return nil
	}
	idx := tokens[0].index
	for len(arr) <= idx {
		arr = append(arr, nil)
	}
	if len(tokens) > 1 {
		arr[idx] = buildNested(tokens[1:], value)
	} else {
		arr[idx] = value
	}
	*root = arr
	return nil
}

func rootArrayAppend(root *interface{}, tokens []pathToken, value interface{}) error {
	arr := materializeArrayRoot(root)
	if arr == nil {
		return nil
	}
	if len(tokens) > 1 {
		arr = append(arr, buildNested(tokens[1:], value))
	} else {
		arr = append(arr, value)
	}
	*root = arr
	return nil
}

// materializeArrayRoot flips an empty object root into an array root and
// returns the working slice, or nil when the root is a populated object.
func materializeArrayRoot(root *interface{}) []interface{} {
	switch v := (*root).(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		if len(v) == 0 {
			return []interface{}{}
		}
	case nil:
		return []interface{}{}
	}
	return nil
}

// buildNested wraps value in the structure described by tokens, inside out.
func buildNested(tokens []pathToken, value interface{}) interface{} {
	result := value
	for i := len(tokens) - 1; i >= 0; i-- {
		switch tokens[i].kind {
		case tokenKey:
			result = map[string]interface{}{tokens[i].key: result}
		case tokenIndex:
			arr := make([]interface{}, tokens[i].index+1)
			arr[tokens[i].index] = result
			result = arr
		case tokenAppend:
			result = []interface{}{result}
		}
	}
	return result
}

// mergeDeep merges overlay into base and returns the result.  Object-object
// merges recurse; array-array merges are positional unless appendMode, in
// which case non-null overlay elements are concatenated.
func mergeDeep(base, overlay interface{}, appendMode bool) interface{} {
	baseMap, baseIsMap := base.(map[string]interface{})
	overMap, overIsMap := overlay.(map[string]interface{})
	if baseIsMap && overIsMap {
		for k, v := range overMap {
			if existing, found := baseMap[k]; found {
				baseMap[k] = mergeDeep(existing, v, appendMode)
			} else {
				baseMap[k] = v
			}
		}
		return baseMap
	}

	baseArr, baseIsArr := base.([]interface{})
	overArr, overIsArr := overlay.([]interface{})
	if baseIsArr && overIsArr {
		if appendMode {
			for _, v := range overArr {
				if v != nil {
					baseArr = append(baseArr, v)
				}
			}
			return baseArr
		}
		for i, v := range overArr {
			if v == nil {
				continue
			}
			if i < len(baseArr) {
				if baseArr[i] == nil {
					baseArr[i] = v
				} else {
					baseArr[i] = mergeDeep(baseArr[i], v, appendMode)
				}
			} else {
				for len(baseArr) < i {
					baseArr = append(baseArr, nil)
				}
				baseArr = append(baseArr, v)
			}
		}
		return baseArr
	}

	return overlay
}
