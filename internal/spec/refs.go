package spec

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/spec2test/internal/generr"
)

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")
var pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")

func escapeToken(s string) string { return pointerEscaper.Replace(s) }

// checkRefs walks the raw document and fails on the first $ref that is not a
// local JSON pointer resolving inside the document. Keys are visited in
// sorted order so the reported reference is stable.
func checkRefs(root map[string]any) *generr.Error {
	return walkRefs(root, root, "#")
}

func walkRefs(root map[string]any, node any, at string) *generr.Error {
	switch val := node.(type) {
	case map[string]any:
		if raw, ok := val["$ref"]; ok {
			ref, isString := raw.(string)
			if !isString {
				return generr.New(generr.UnresolvedReference, "spec: $ref at %s is not a string", at).WithPointer(at)
			}
			if err := resolvesLocally(root, ref); err != nil {
				return generr.New(generr.UnresolvedReference, "spec: cannot resolve $ref %q at %s: %v", ref, at, err).WithPointer(at)
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "$ref" {
				continue
			}
			if err := walkRefs(root, val[k], at+"/"+escapeToken(k)); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range val {
			if err := walkRefs(root, child, at+"/"+strconv.Itoa(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolvesLocally(root map[string]any, ref string) error {
	if !strings.HasPrefix(ref, "#") {
		return fmt.Errorf("only local references are supported")
	}
	pointer := strings.TrimPrefix(ref, "#")
	if unescaped, err := url.PathUnescape(pointer); err == nil {
		pointer = unescaped
	}
	if pointer == "" {
		return nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return fmt.Errorf("malformed JSON pointer")
	}
	var cur any = root
	for _, token := range strings.Split(pointer[1:], "/") {
		token = pointerUnescaper.Replace(token)
		switch val := cur.(type) {
		case map[string]any:
			next, ok := val[token]
			if !ok {
				return fmt.Errorf("no member %q", token)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(val) {
				return fmt.Errorf("index %q out of range", token)
			}
			cur = val[idx]
		default:
			return fmt.Errorf("cannot descend into %q", token)
		}
	}
	return nil
}
