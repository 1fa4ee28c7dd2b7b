package spec

import "testing"

func TestRepairV2_MergesMultipleBodies(t *testing.T) {
	op := map[string]any{
		"parameters": []any{
			map[string]any{"in": "body", "name": "a", "required": true, "schema": map[string]any{"type": "string"}},
			map[string]any{"in": "body", "name": "b", "schema": map[string]any{"type": "integer"}},
			map[string]any{"in": "query", "name": "q", "type": "string"},
		},
	}
	root := map[string]any{"paths": map[string]any{"/x": map[string]any{"post": op}}}
	if !repairV2Operations(root) {
		t.Fatalf("expected a change")
	}
	params := op["parameters"].([]any)
	if len(params) != 2 {
		t.Fatalf("expected merged body plus query, got %v", params)
	}
	body := params[0].(map[string]any)
	schema := body["schema"].(map[string]any)
	props := schema["properties"].(map[string]any)
	if _, ok := props["a"]; !ok {
		t.Fatalf("missing property a: %v", props)
	}
	if _, ok := props["b"]; !ok {
		t.Fatalf("missing property b: %v", props)
	}
	req := schema["required"].([]any)
	if len(req) != 1 || req[0] != "a" {
		t.Fatalf("unexpected required %v", req)
	}
}

func TestRepairV2_BodyWithFormData(t *testing.T) {
	op := map[string]any{
		"parameters": []any{
			map[string]any{"in": "body", "name": "meta", "schema": map[string]any{"$ref": "#/definitions/Meta"}},
			map[string]any{"in": "formData", "name": "file", "type": "file"},
		},
	}
	root := map[string]any{"paths": map[string]any{"/upload": map[string]any{"post": op}}}
	if !repairV2Operations(root) {
		t.Fatalf("expected a change")
	}
	params := op["parameters"].([]any)
	meta := params[0].(map[string]any)
	if meta["in"] != "formData" || meta["type"] != "string" {
		t.Fatalf("body should degrade to a string form field: %v", meta)
	}
	consumes := op["consumes"].([]any)
	if !containsString(consumes, "multipart/form-data") {
		t.Fatalf("expected multipart consumes, got %v", consumes)
	}
}

func TestRepairV2_LeavesValidOperations(t *testing.T) {
	op := map[string]any{
		"parameters": []any{
			map[string]any{"in": "body", "name": "only", "schema": map[string]any{"type": "object"}},
		},
	}
	root := map[string]any{"paths": map[string]any{"/x": map[string]any{"put": op, "parameters": []any{}}}}
	if repairV2Operations(root) {
		t.Fatalf("single body operation should be untouched")
	}
}
