package scenario

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/spec2test/internal/spec"
)

func loadModel(t *testing.T, doc string) *spec.Model {
	t.Helper()
	d, err := spec.LoadData(context.Background(), []byte(doc))
	require.NoError(t, err)
	m, err := spec.BuildModel(context.Background(), d)
	require.NoError(t, err)
	return m
}

func endpoint(t *testing.T, m *spec.Model, id string) *spec.Endpoint {
	t.Helper()
	for _, ep := range m.Endpoints {
		if ep.ID == id {
			return ep
		}
	}
	require.FailNow(t, "endpoint not found", id)
	return nil
}

func byName(scenarios []TestScenario) map[string]TestScenario {
	out := map[string]TestScenario{}
	for _, s := range scenarios {
		out[s.Name] = s
	}
	return out
}

const usersDoc = `openapi: 3.0.3
info: {title: Users, version: "1"}
paths:
  /users/{id}:
    get:
      operationId: getUser
      parameters:
        - {in: path, name: id, required: true, schema: {type: integer, minimum: 1}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                properties:
                  id: {type: integer}
        "404": {description: missing}
`

func TestRules_UsersExample(t *testing.T) {
	t.Parallel()
	m := loadModel(t, usersDoc)
	ep := endpoint(t, m, "GET /users/{id}")

	got := byName(Rules(m.Schemas, ep))

	happy := got["happyPath"]
	assert.Equal(t, HappyPath, happy.Category)
	assert.Equal(t, []Binding{{Name: "id", Value: "1"}}, happy.Inputs.Path)
	assert.Equal(t, 200, happy.Expect.Status)
	require.NotNil(t, happy.Expect.Schema)

	below := got["idBelowMinimum"]
	assert.Equal(t, Boundary, below.Category)
	assert.Equal(t, []Binding{{Name: "id", Value: "0"}}, below.Inputs.Path)
	assert.Equal(t, 404, below.Expect.Status)

	at := got["idAtMinimum"]
	assert.Equal(t, "1", at.Inputs.Path[0].Value)
	assert.Equal(t, 200, at.Expect.Status)

	unknown, ok := got["returns404ForUnknownId"]
	require.True(t, ok, "expected an unknown-resource scenario")
	assert.Equal(t, "999999999", unknown.Inputs.Path[0].Value)
	assert.Equal(t, 404, unknown.Expect.Status)
	assert.False(t, unknown.Placeholder)

	missing := got["missingId"]
	assert.Equal(t, Negative, missing.Category)
	assert.Equal(t, "", missing.Inputs.Path[0].Value)
}

const itemsDoc = `openapi: 3.0.3
info: {title: Items, version: "1"}
paths:
  /items:
    post:
      parameters:
        - {in: query, name: limit, schema: {type: integer, minimum: 0, maximum: 50, exclusiveMaximum: true}}
        - {in: header, name: X-Request-Id, required: true, schema: {type: string, format: uuid}}
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name, sku]
              properties:
                name: {type: string, minLength: 2, maxLength: 5}
                sku: {type: string, pattern: "^[A-Z]{3}-[0-9]+$"}
                price: {type: number, minimum: 0.5}
                tags:
                  type: array
                  minItems: 1
                  maxItems: 3
                  items: {type: string}
      responses:
        "201": {description: created}
        "400": {description: bad}
        "415": {description: media}
        "422": {description: invalid}
        "500": {description: boom}
        default: {description: other}
`

func TestRules_HappyPathValues(t *testing.T) {
	t.Parallel()
	m := loadModel(t, itemsDoc)
	ep := endpoint(t, m, "POST /items")
	happy := byName(Rules(m.Schemas, ep))["happyPath"]

	assert.Empty(t, happy.Inputs.Query, "optional parameters are not bound")
	assert.Equal(t, []Binding{{Name: "X-Request-Id", Value: "00000000-0000-4000-8000-000000000000"}}, happy.Inputs.Header)
	require.True(t, happy.Inputs.HasBody)
	assert.Equal(t, "application/json", happy.Inputs.ContentType)
	assert.Equal(t, map[string]any{"name": "value", "sku": "AAA-0"}, happy.Inputs.Body)
	assert.Equal(t, 201, happy.Expect.Status)
}

func TestRules_BoundaryCompleteness(t *testing.T) {
	t.Parallel()
	m := loadModel(t, itemsDoc)
	ep := endpoint(t, m, "POST /items")
	got := byName(Rules(m.Schemas, ep))

	tests := []struct {
		name   string
		query  string
		field  string
		value  any
		status int
	}{
		{name: "limitAtMinimum", query: "0", status: 201},
		{name: "limitBelowMinimum", query: "-1", status: 400},
		{name: "limitAtExclusiveMaximum", query: "50", status: 400},
		{name: "limitBelowExclusiveMaximum", query: "49", status: 201},
		{name: "bodyNameAtMinLength", field: "name", value: "va", status: 201},
		{name: "bodyNameBelowMinLength", field: "name", value: "v", status: 400},
		{name: "bodyNameAtMaxLength", field: "name", value: "value", status: 201},
		{name: "bodyNameAboveMaxLength", field: "name", value: "valuea", status: 400},
		{name: "bodySkuPatternMismatch", field: "sku", value: "!", status: 400},
		{name: "bodyPriceAtMinimum", field: "price", value: 0.5, status: 201},
		{name: "bodyPriceBelowMinimum", field: "price", value: -0.5, status: 400},
		{name: "bodyTagsBelowMinItems", field: "tags", value: []any{}, status: 400},
		{name: "bodyTagsAboveMaxItems", field: "tags", value: []any{"value", "value", "value", "value"}, status: 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, ok := got[tt.name]
			require.True(t, ok, "missing scenario %s", tt.name)
			assert.Equal(t, Boundary, sc.Category)
			assert.Equal(t, tt.status, sc.Expect.Status)
			if tt.query != "" {
				v, _ := Get(sc.Inputs.Query, "limit")
				assert.Equal(t, tt.query, v)
				return
			}
			body := sc.Inputs.Body.(map[string]any)
			assert.Equal(t, tt.value, body[tt.field])
		})
	}
}

func TestRules_NegativesAndCoverage(t *testing.T) {
	t.Parallel()
	m := loadModel(t, itemsDoc)
	ep := endpoint(t, m, "POST /items")
	scenarios := Rules(m.Schemas, ep)
	got := byName(scenarios)

	for _, name := range []string{"missingXRequestId", "missingBody", "missingBodyName", "missingBodySku"} {
		sc, ok := got[name]
		require.True(t, ok, "missing %s", name)
		assert.Equal(t, Negative, sc.Category)
		assert.Equal(t, 400, sc.Expect.Status)
	}
	_, present := Get(got["missingXRequestId"].Inputs.Header, "X-Request-Id")
	assert.False(t, present)
	assert.NotContains(t, got["missingBodySku"].Inputs.Body, "sku")
	assert.Contains(t, got["happyPath"].Inputs.Body, "sku", "variants must not alias the happy-path body")

	media := got["returns415ForUnsupportedMediaType"]
	assert.Equal(t, "text/plain", media.Inputs.ContentType)
	assert.Equal(t, 415, media.Expect.Status)

	empty := got["returns422ForEmptyBody"]
	assert.Equal(t, map[string]any{}, empty.Inputs.Body)

	placeholder := got["returns500"]
	assert.True(t, placeholder.Placeholder)
	assert.Equal(t, 500, placeholder.Expect.Status)

	// Every declared status except default is targeted.
	targeted := map[string]bool{}
	for _, sc := range scenarios {
		targeted[sc.Expect.Declared] = true
	}
	for _, resp := range ep.Responses {
		if resp.Status == "default" {
			continue
		}
		assert.True(t, targeted[resp.Status], "status %s not targeted", resp.Status)
	}
}

const addressDoc = `openapi: 3.0.3
info: {title: Addresses, version: "1"}
paths:
  /addresses:
    post:
      parameters:
        - in: query
          name: codes
          required: true
          schema:
            type: array
            items: {type: string, pattern: "^[A-Z]{2}$"}
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [address]
              properties:
                address:
                  type: object
                  required: [zip]
                  properties:
                    zip: {type: string, pattern: "^[0-9]{5}$"}
                    floor: {type: integer, minimum: 0}
                lines:
                  type: array
                  items:
                    type: object
                    required: [text]
                    properties:
                      text: {type: string, maxLength: 3}
      responses:
        "201": {description: created}
        "400": {description: bad}
`

func TestRules_NestedFieldsAndArrayItems(t *testing.T) {
	t.Parallel()
	m := loadModel(t, addressDoc)
	got := byName(Rules(m.Schemas, endpoint(t, m, "POST /addresses")))

	happy := got["happyPath"]
	assert.Equal(t, map[string]any{"address": map[string]any{"zip": "00000"}}, happy.Inputs.Body)
	codes, _ := Get(happy.Inputs.Query, "codes")
	assert.Equal(t, "AA", codes)

	zip, ok := got["bodyAddressZipPatternMismatch"]
	require.True(t, ok, "nested pattern is probed")
	assert.Equal(t, Boundary, zip.Category)
	assert.Equal(t, 400, zip.Expect.Status)
	assert.NotEqual(t, "00000", zip.Inputs.Body.(map[string]any)["address"].(map[string]any)["zip"])
	assert.Contains(t, zip.Description, "address.zip")

	floorAt := got["bodyAddressFloorAtMinimum"]
	assert.Equal(t, map[string]any{"zip": "00000", "floor": int64(0)}, floorAt.Inputs.Body.(map[string]any)["address"])
	assert.Equal(t, 201, floorAt.Expect.Status)
	floorBelow := got["bodyAddressFloorBelowMinimum"]
	assert.Equal(t, int64(-1), floorBelow.Inputs.Body.(map[string]any)["address"].(map[string]any)["floor"])
	assert.Equal(t, 400, floorBelow.Expect.Status)

	// Optional containers are sampled when a nested field is probed.
	text := got["bodyLinesItemTextAboveMaxLength"]
	lines := text.Inputs.Body.(map[string]any)["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "valu", lines[0].(map[string]any)["text"])
	assert.Equal(t, 400, text.Expect.Status)

	item, ok := got["codesItemPatternMismatch"]
	require.True(t, ok, "array item pattern is probed")
	v, _ := Get(item.Inputs.Query, "codes")
	assert.NotEqual(t, "AA", v)
	assert.Equal(t, 400, item.Expect.Status)

	missingZip, ok := got["missingBodyAddressZip"]
	require.True(t, ok)
	assert.Equal(t, Negative, missingZip.Category)
	assert.Equal(t, map[string]any{"address": map[string]any{}}, missingZip.Inputs.Body)
	assert.Contains(t, got, "missingBodyAddress")

	// Variants never alias the happy-path body.
	assert.Equal(t, map[string]any{"address": map[string]any{"zip": "00000"}}, got["happyPath"].Inputs.Body)
}

func TestNumericCases_FractionalExclusiveBounds(t *testing.T) {
	t.Parallel()
	lo, hi := 1.5, 7.5
	cases := numericCases(true, spec.Constraints{Minimum: &lo, ExclusiveMinimum: true, Maximum: &hi, ExclusiveMaximum: true})
	got := map[string]boundaryCase{}
	for _, bc := range cases {
		got[bc.suffix] = bc
	}
	assert.Equal(t, boundaryCase{"AboveExclusiveMinimum", int64(2), true, "smallest integer above exclusive minimum 1.5"}, got["AboveExclusiveMinimum"])
	assert.Equal(t, int64(1), got["BelowExclusiveMinimum"].value)
	assert.False(t, got["BelowExclusiveMinimum"].valid)
	assert.Equal(t, int64(7), got["BelowExclusiveMaximum"].value)
	assert.True(t, got["BelowExclusiveMaximum"].valid)
	assert.Equal(t, int64(8), got["AboveExclusiveMaximum"].value)
	assert.False(t, got["AboveExclusiveMaximum"].valid)
	assert.NotContains(t, got, "AtExclusiveMinimum")
	assert.NotContains(t, got, "AtExclusiveMaximum")
}

func TestRules_HappyPathAgreesWithBoundaries(t *testing.T) {
	t.Parallel()
	doc := `openapi: 3.0.3
info: {title: N, version: "1"}
paths:
  /n:
    get:
      parameters:
        - {in: query, name: n, required: true, schema: {type: integer, minimum: 1.5, exclusiveMinimum: true}}
      responses:
        "200": {description: ok}
        "400": {description: bad}
`
	m := loadModel(t, doc)
	scenarios := Rules(m.Schemas, endpoint(t, m, "GET /n"))
	expected := map[string]int{}
	for _, sc := range scenarios {
		v, ok := Get(sc.Inputs.Query, "n")
		if !ok {
			continue
		}
		if prev, seen := expected[v]; seen {
			assert.Equal(t, prev, sc.Expect.Status, "n=%s expects two different statuses", v)
		}
		expected[v] = sc.Expect.Status
	}
	assert.Equal(t, 200, expected["2"])
	assert.Equal(t, 400, expected["1"])
}

func TestNumericCases_HugeIntegerBounds(t *testing.T) {
	t.Parallel()
	lo, hi := -1e30, 1e30
	assert.Empty(t, numericCases(true, spec.Constraints{Minimum: &lo, Maximum: &hi}),
		"a step cannot move a bound this large")

	big := 9.3e18
	assert.Equal(t, 9.3e18, integerSample(spec.Constraints{Minimum: &big}))
	assert.Equal(t, "9300000000000000000", WireValue(integerSample(spec.Constraints{Minimum: &big})))
	small := 41.0
	assert.Equal(t, int64(41), integerSample(spec.Constraints{Minimum: &small}))
}

func TestRules_GenericExpectations(t *testing.T) {
	t.Parallel()
	doc := `openapi: 3.0.3
info: {title: G, version: "1"}
paths:
  /search:
    get:
      parameters:
        - {in: query, name: q, required: true, schema: {type: string}}
      responses:
        "2XX": {description: ok}
        "503": {description: down}
`
	m := loadModel(t, doc)
	got := byName(Rules(m.Schemas, endpoint(t, m, "GET /search")))

	assert.Equal(t, Expectation{Class: 2, Declared: "2XX"}, got["happyPath"].Expect)
	assert.Equal(t, Expectation{Class: 4}, got["missingQ"].Expect)
	assert.True(t, got["returns503"].Placeholder)
}

func TestRules_Deterministic(t *testing.T) {
	t.Parallel()
	m := loadModel(t, itemsDoc)
	ep := endpoint(t, m, "POST /items")
	first := Rules(m.Schemas, ep)
	for i := 0; i < 5; i++ {
		again := Rules(m.Schemas, ep)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].Key(), again[j].Key())
			assert.Equal(t, first[j].Name, again[j].Name)
		}
	}
}

func TestShortestMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern string
		want    string
	}{
		{`^[A-Z]{3}-[0-9]+$`, "AAA-0"},
		{`^\d{4}$`, "0000"},
		{`^(cat|ox)$`, "ox"},
		{`^a*b?$`, ""},
		{`[a-z]+@[a-z]+\.com`, "a@a.com"},
	}
	for _, tt := range tests {
		got, ok := shortestMatch(tt.pattern)
		assert.True(t, ok, tt.pattern)
		assert.Equal(t, tt.want, got, tt.pattern)
	}
	_, ok := shortestMatch(`(?<=a)b`)
	assert.False(t, ok, "unsupported syntax reports false")
}

func TestLowerCamel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "xRequestId", LowerCamel("X-Request-Id"))
	assert.Equal(t, "getUserById", LowerCamel("getUserByID"))
	assert.Equal(t, "userId", LowerCamel("user_id"))
	assert.Equal(t, "", LowerCamel("---"))
}
