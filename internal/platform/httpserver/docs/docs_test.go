package docs

import (
	"encoding/json"
	"testing"
)

func TestDocumentCoversRoutes(t *testing.T) {
	var doc struct {
		Swagger string                    `json:"swagger"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal([]byte(SwaggerInfo.ReadDoc()), &doc); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}
	if doc.Swagger != "2.0" {
		t.Fatalf("unexpected swagger version %q", doc.Swagger)
	}

	routes := map[string]string{
		"/v1/drops/available":                             "get",
		"/v1/drops/claim":                                 "post",
		"/v1/drops/requesters/{requester_id}":             "get",
		"/v1/drops/requesters/{requester_id}/allocations": "get",
		"/v1/gateway/commands":                            "post",
	}
	for path, method := range routes {
		if _, ok := doc.Paths[path][method]; !ok {
			t.Errorf("missing %s %s", method, path)
		}
	}
}
