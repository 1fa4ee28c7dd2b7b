package spec

import (
	"hash/fnv"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// structuralKey describes a node from its own fields and its children's class
// ids. Identifiers do not participate, except the target of a back-reference.
func structuralKey(n *SchemaNode, child func(*SchemaNode) string) string {
	var b strings.Builder
	b.WriteString(string(n.Kind))
	b.WriteByte('|')
	b.WriteString(n.Type)
	b.WriteByte('|')
	b.WriteString(n.Format)
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(n.Nullable))

	c := n.Constraints
	writeFloat(&b, "min", c.Minimum)
	writeFloat(&b, "max", c.Maximum)
	b.WriteString("|xmin=" + strconv.FormatBool(c.ExclusiveMinimum))
	b.WriteString("|xmax=" + strconv.FormatBool(c.ExclusiveMaximum))
	writeUint(&b, "minLen", c.MinLength)
	writeUint(&b, "maxLen", c.MaxLength)
	writeUint(&b, "minItems", c.MinItems)
	writeUint(&b, "maxItems", c.MaxItems)
	b.WriteString("|pattern=" + c.Pattern)
	b.WriteString("|required=" + strings.Join(c.Required, ","))
	if len(c.Enum) > 0 {
		enc, err := json.Marshal(c.Enum)
		if err != nil {
			enc = []byte(strings.Repeat("?", len(c.Enum)))
		}
		b.WriteString("|enum=")
		b.Write(enc)
	}

	if n.Kind == KindRef {
		b.WriteString("|ref=" + n.Ref)
	}
	for _, p := range n.Properties {
		b.WriteString("|prop:" + p.Name + "=" + child(p.Schema))
	}
	if n.Items != nil {
		b.WriteString("|items=" + child(n.Items))
	}
	for _, br := range n.Branches {
		b.WriteString("|branch=" + child(br))
	}

	return b.String()
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// classes interns structural keys. Equal keys get the same class id; the id
// is the key's hash, suffixed when distinct keys share a hash.
type classes struct {
	hash   func(string) uint64
	byKey  map[string]string
	byHash map[uint64]int
}

func newClasses() *classes {
	return &classes{hash: fnv64a, byKey: map[string]string{}, byHash: map[uint64]int{}}
}

func (c *classes) id(key string) string {
	if id, ok := c.byKey[key]; ok {
		return id
	}
	sum := c.hash(key)
	id := strconv.FormatUint(sum, 16)
	if n := c.byHash[sum]; n > 0 {
		id += "~" + strconv.Itoa(n)
	}
	c.byHash[sum]++
	c.byKey[key] = id
	return id
}

func writeFloat(b *strings.Builder, name string, v *float64) {
	if v == nil {
		return
	}
	b.WriteString("|" + name + "=" + strconv.FormatFloat(*v, 'g', -1, 64))
}

func writeUint(b *strings.Builder, name string, v *uint64) {
	if v == nil {
		return
	}
	b.WriteString("|" + name + "=" + strconv.FormatUint(*v, 10))
}
