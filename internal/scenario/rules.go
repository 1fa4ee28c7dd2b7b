package scenario

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/spec2test/internal/spec"
)

// Strings and arrays beyond this bound get no at/above-maximum scenario.
const maxBoundarySize = 1024

// Rules derives the deterministic scenario set for ep, in order: happy path,
// negative (one per required field omitted), boundary, then one scenario for
// every declared status not yet targeted.
func Rules(reg *spec.Registry, ep *spec.Endpoint) []TestScenario {
	r := &ruleSet{s: sampler{reg: reg}, ep: ep}
	r.happy = r.happyInputs()
	r.success = r.successExpectation()

	r.add(HappyPath, "happyPath", "All required inputs with representative values", r.happy, r.success)
	r.negatives()
	r.boundaries()
	r.coverage()
	return r.out
}

type ruleSet struct {
	s       sampler
	ep      *spec.Endpoint
	happy   Inputs
	success Expectation
	out     []TestScenario
}

func (r *ruleSet) add(cat Category, name, desc string, in Inputs, exp Expectation) {
	r.out = append(r.out, TestScenario{
		EndpointID:  r.ep.ID,
		Category:    cat,
		Name:        name,
		Description: desc,
		Inputs:      in,
		Expect:      exp,
	})
}

func (r *ruleSet) happyInputs() Inputs {
	var in Inputs
	for _, p := range r.ep.Parameters {
		if !p.Required {
			continue
		}
		bs := in.bindings(p.In)
		*bs = append(*bs, Binding{Name: p.Name, Value: WireValue(r.s.value(p.Schema, 0))})
	}
	if rb := r.ep.RequestBody; rb != nil && rb.Schema != nil {
		in.HasBody = true
		in.Body = r.s.value(rb.Schema, 0)
		in.ContentType = rb.ContentType
	}
	return in
}

func (r *ruleSet) expect(status string) Expectation {
	exp := Expectation{Declared: status}
	if code, err := strconv.Atoi(status); err == nil {
		exp.Status = code
	} else if len(status) == 3 && strings.HasSuffix(status, "XX") {
		exp.Class = int(status[0] - '0')
	}
	if resp, ok := r.ep.Response(status); ok {
		exp.Schema = resp.Schema
	}
	return exp
}

// successExpectation targets the lowest declared 2xx, then a 2XX range,
// else any 2xx.
func (r *ruleSet) successExpectation() Expectation {
	if code := r.lowestDeclared(2); code != "" {
		return r.expect(code)
	}
	if _, ok := r.ep.Response("2XX"); ok {
		return r.expect("2XX")
	}
	return Expectation{Class: 2}
}

// clientError picks the declared 4xx a missing or invalid input at loc
// should produce. Path inputs prefer 404; others prefer 400.
func (r *ruleSet) clientError(loc spec.Location) Expectation {
	prefs := []string{"400", "422", "404"}
	if loc == spec.InPath {
		prefs = []string{"404", "400", "422"}
	}
	for _, code := range prefs {
		if _, ok := r.ep.Response(code); ok {
			return r.expect(code)
		}
	}
	if code := r.lowestDeclared(4); code != "" {
		return r.expect(code)
	}
	if _, ok := r.ep.Response("4XX"); ok {
		return r.expect("4XX")
	}
	return Expectation{Class: 4}
}

func (r *ruleSet) lowestDeclared(class int) string {
	best := 0
	for _, resp := range r.ep.Responses {
		code, err := strconv.Atoi(resp.Status)
		if err != nil || code/100 != class {
			continue
		}
		if best == 0 || code < best {
			best = code
		}
	}
	if best == 0 {
		return ""
	}
	return strconv.Itoa(best)
}

const bodyLocation spec.Location = "body"

func (r *ruleSet) negatives() {
	for _, p := range r.ep.Parameters {
		if !p.Required {
			continue
		}
		in := r.happy.clone()
		bs := in.bindings(p.In)
		if p.In == spec.InPath {
			// The segment stays in the URL template, so it is sent empty.
			*bs = with(*bs, p.Name, "")
		} else {
			*bs = without(*bs, p.Name)
		}
		r.add(Negative, "missing"+upperCamel(p.Name),
			"Omits required "+string(p.In)+" parameter "+p.Name, in, r.clientError(p.In))
	}

	rb := r.ep.RequestBody
	if rb == nil || rb.Schema == nil {
		return
	}
	if rb.Required {
		in := r.happy.clone()
		in.HasBody, in.Body, in.ContentType = false, nil, ""
		r.add(Negative, "missingBody", "Omits the required request body", in, r.clientError(bodyLocation))
	}
	for _, f := range r.s.fields(rb.Schema) {
		if !f.required {
			continue
		}
		body, ok := deleteField(r.happy.Body, f.path)
		if !ok {
			continue
		}
		in := r.happy.clone()
		in.Body = body
		r.add(Negative, "missingBody"+f.camel(),
			"Omits required body field "+f.label(""), in, r.clientError(bodyLocation))
	}
}

// boundaryCase is one value probing a declared bound.
type boundaryCase struct {
	suffix string
	value  any
	valid  bool
	desc   string
}

// boundaries probes the constraints of every parameter and of every field
// nested in the body. Array parameters also have their items probed.
func (r *ruleSet) boundaries() {
	for _, p := range r.ep.Parameters {
		for _, bc := range r.cases(p.Schema) {
			in := r.happy.clone()
			bs := in.bindings(p.In)
			*bs = with(*bs, p.Name, WireValue(bc.value))
			r.add(Boundary, LowerCamel(p.Name)+bc.suffix,
				p.Name+" "+bc.desc, in, r.boundaryExpectation(bc, p.In))
		}
		for _, f := range r.s.fields(p.Schema) {
			base := r.s.value(p.Schema, 0)
			for _, bc := range r.cases(f.schema()) {
				in := r.happy.clone()
				bs := in.bindings(p.In)
				*bs = with(*bs, p.Name, WireValue(r.s.setField(base, f.path, bc.value)))
				r.add(Boundary, LowerCamel(p.Name)+f.camel()+bc.suffix,
					f.label(p.Name)+" "+bc.desc, in, r.boundaryExpectation(bc, p.In))
			}
		}
	}

	rb := r.ep.RequestBody
	if rb == nil || rb.Schema == nil || !r.happy.HasBody {
		return
	}
	for _, f := range r.s.fields(rb.Schema) {
		for _, bc := range r.cases(f.schema()) {
			in := r.happy.clone()
			in.Body = r.s.setField(r.happy.Body, f.path, bc.value)
			r.add(Boundary, "body"+f.camel()+bc.suffix,
				"body field "+f.label("")+" "+bc.desc, in, r.boundaryExpectation(bc, bodyLocation))
		}
	}
}

func (r *ruleSet) boundaryExpectation(bc boundaryCase, loc spec.Location) Expectation {
	if bc.valid {
		return r.success
	}
	return r.clientError(loc)
}

func (r *ruleSet) cases(n *spec.SchemaNode) []boundaryCase {
	n = r.s.reg.Resolve(n)
	if n == nil || len(n.Constraints.Enum) > 0 {
		return nil
	}
	c := n.Constraints
	var out []boundaryCase
	switch {
	case n.Type == "integer" || n.Type == "number":
		out = numericCases(n.Type == "integer", c)
	case n.Type == "string":
		base := stringSample(n)
		if c.MinLength != nil {
			l := int(*c.MinLength)
			out = append(out,
				boundaryCase{"AtMinLength", sized(base, l, c.Pattern), true, "at minLength " + strconv.Itoa(l)},
				boundaryCase{"BelowMinLength", sized(base, l-1, ""), false, "one shorter than minLength " + strconv.Itoa(l)})
		}
		if c.MaxLength != nil && *c.MaxLength < maxBoundarySize {
			l := int(*c.MaxLength)
			out = append(out,
				boundaryCase{"AtMaxLength", sized(base, l, c.Pattern), true, "at maxLength " + strconv.Itoa(l)},
				boundaryCase{"AboveMaxLength", sized(base, l+1, ""), false, "one longer than maxLength " + strconv.Itoa(l)})
		}
		if c.Pattern != "" {
			if v, ok := nonMatching(c.Pattern); ok {
				out = append(out, boundaryCase{"PatternMismatch", v, false, "not matching " + c.Pattern})
			}
		}
	case n.Kind == spec.KindArray:
		if c.MinItems != nil {
			l := int(*c.MinItems)
			out = append(out,
				boundaryCase{"AtMinItems", r.s.array(n, l, 0), true, "with minItems " + strconv.Itoa(l)},
				boundaryCase{"BelowMinItems", r.s.array(n, l-1, 0), false, "one below minItems " + strconv.Itoa(l)})
		}
		if c.MaxItems != nil && *c.MaxItems < maxBoundarySize {
			l := int(*c.MaxItems)
			out = append(out,
				boundaryCase{"AtMaxItems", r.s.array(n, l, 0), true, "with maxItems " + strconv.Itoa(l)},
				boundaryCase{"AboveMaxItems", r.s.array(n, l+1, 0), false, "one above maxItems " + strconv.Itoa(l)})
		}
	}
	return out
}

// numericCases probes each bound at the bound and one step past it. For an
// exclusive bound the bound itself is the invalid value and the step inside
// is the valid one. An integer with a fractional exclusive bound is probed at
// the nearest integer inside (valid) and the one beyond it (invalid). Bounds
// too large for a step to change the value get no cases.
func numericCases(integer bool, c spec.Constraints) []boundaryCase {
	step := 1.0
	if !integer {
		step = numberStep(c)
	}
	num := func(v float64) any {
		if integer {
			return integerValue(v)
		}
		return v
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	var out []boundaryCase
	if c.Minimum != nil {
		bound := *c.Minimum
		m := bound
		if integer {
			m = math.Ceil(m)
		}
		switch {
		case m-step == m || m+step == m:
		case c.ExclusiveMinimum && m == bound:
			out = append(out,
				boundaryCase{"AtExclusiveMinimum", num(m), false, "equal to exclusive minimum " + format(bound)},
				boundaryCase{"AboveExclusiveMinimum", num(m + step), true, "one step above exclusive minimum " + format(bound)})
		case c.ExclusiveMinimum:
			out = append(out,
				boundaryCase{"AboveExclusiveMinimum", num(m), true, "smallest integer above exclusive minimum " + format(bound)},
				boundaryCase{"BelowExclusiveMinimum", num(m - step), false, "largest integer below exclusive minimum " + format(bound)})
		default:
			out = append(out,
				boundaryCase{"AtMinimum", num(m), true, "at minimum " + format(bound)},
				boundaryCase{"BelowMinimum", num(m - step), false, "one step below minimum " + format(bound)})
		}
	}
	if c.Maximum != nil {
		bound := *c.Maximum
		m := bound
		if integer {
			m = math.Floor(m)
		}
		switch {
		case m-step == m || m+step == m:
		case c.ExclusiveMaximum && m == bound:
			out = append(out,
				boundaryCase{"AtExclusiveMaximum", num(m), false, "equal to exclusive maximum " + format(bound)},
				boundaryCase{"BelowExclusiveMaximum", num(m - step), true, "one step below exclusive maximum " + format(bound)})
		case c.ExclusiveMaximum:
			out = append(out,
				boundaryCase{"BelowExclusiveMaximum", num(m), true, "largest integer below exclusive maximum " + format(bound)},
				boundaryCase{"AboveExclusiveMaximum", num(m + step), false, "smallest integer above exclusive maximum " + format(bound)})
		default:
			out = append(out,
				boundaryCase{"AtMaximum", num(m), true, "at maximum " + format(bound)},
				boundaryCase{"AboveMaximum", num(m + step), false, "one step above maximum " + format(bound)})
		}
	}
	return out
}

// coverage adds one scenario per declared status that nothing targets yet.
// Inputs are derived where the status has a conventional trigger; otherwise
// the scenario is a placeholder. A declared 404 on an endpoint with path
// parameters always gets an unknown-resource scenario.
func (r *ruleSet) coverage() {
	targeted := map[string]bool{}
	for _, s := range r.out {
		if s.Expect.Declared != "" {
			targeted[s.Expect.Declared] = true
		}
	}
	unknownResource := len(r.ep.ParametersIn(spec.InPath)) > 0
	statuses := make([]string, 0, len(r.ep.Responses))
	for _, resp := range r.ep.Responses {
		if resp.Status == "default" || (targeted[resp.Status] && !(resp.Status == "404" && unknownResource)) {
			continue
		}
		statuses = append(statuses, resp.Status)
	}
	sort.Strings(statuses)

	for _, status := range statuses {
		exp := r.expect(status)
		cat := Negative
		if exp.Status/100 == 2 || exp.Class == 2 {
			cat = HappyPath
		}
		if in, name, desc, ok := r.trigger(status); ok {
			r.add(cat, name, desc, in, exp)
			continue
		}
		r.out = append(r.out, TestScenario{
			EndpointID:  r.ep.ID,
			Category:    cat,
			Name:        "returns" + status,
			Description: "No input could be derived for declared response " + status,
			Inputs:      r.happy.clone(),
			Expect:      exp,
			Placeholder: true,
		})
	}
}

func (r *ruleSet) trigger(status string) (Inputs, string, string, bool) {
	rb := r.ep.RequestBody
	hasBody := rb != nil && rb.Schema != nil
	jsonBody := hasBody && isJSON(rb.ContentType)

	switch status {
	case "404":
		paths := r.ep.ParametersIn(spec.InPath)
		if len(paths) == 0 {
			break
		}
		p := paths[0]
		in := r.happy.clone()
		in.Path = with(in.Path, p.Name, r.unknownValue(p.Schema))
		return in, "returns404ForUnknown" + upperCamel(p.Name), "Unknown " + p.Name + " value", true
	case "415":
		if !hasBody {
			break
		}
		in := r.happy.clone()
		in.ContentType, in.RawBody = "text/plain", "unsupported"
		return in, "returns415ForUnsupportedMediaType", "Body sent as text/plain", true
	case "400", "4XX":
		if !jsonBody {
			break
		}
		in := r.happy.clone()
		in.RawBody = "{"
		return in, "returns" + status + "ForMalformedBody", "Malformed JSON body", true
	case "422":
		if !jsonBody {
			break
		}
		if _, required := r.s.objectShape(rb.Schema); len(required) == 0 {
			break
		}
		in := r.happy.clone()
		in.Body = map[string]any{}
		return in, "returns422ForEmptyBody", "Empty object body without required fields", true
	}
	return Inputs{}, "", "", false
}

// unknownValue is a well-formed path value unlikely to name an existing
// resource.
func (r *ruleSet) unknownValue(n *spec.SchemaNode) string {
	n = r.s.reg.Resolve(n)
	if n == nil {
		return "does-not-exist"
	}
	switch n.Type {
	case "integer", "number":
		v := 999999999.0
		if m := n.Constraints.Maximum; m != nil && *m < v {
			v = math.Floor(*m)
			if n.Constraints.ExclusiveMaximum && v == *m {
				v--
			}
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case "string":
		if strings.EqualFold(n.Format, "uuid") {
			return "ffffffff-ffff-4fff-bfff-ffffffffffff"
		}
		v := "does-not-exist"
		if m := n.Constraints.MaxLength; m != nil && int(*m) < len(v) {
			v = v[:*m]
		}
		if len(n.Constraints.Enum) == 0 && v != "" && fitsPattern(n.Constraints.Pattern, v) {
			return v
		}
	}
	return WireValue(r.s.value(n, 0))
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}
