package server

import (
	"encoding/json"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/54b3r/paperqa-go/internal/answer"
)

// openAPIDocument describes the public routes. Schemas are generated from
// the handler types so the document cannot drift from the wire format.
func openAPIDocument(version string) ([]byte, error) {
	if version == "" {
		version = "dev"
	}

	schema := func(v any) (*openapi3.SchemaRef, error) {
		return openapi3gen.NewSchemaRefForValue(v, openapi3.Schemas{})
	}
	askReq, err := schema(&askRequest{})
	if err != nil {
		return nil, err
	}
	askResp, err := schema(&answer.Answer{})
	if err != nil {
		return nil, err
	}
	health, err := schema(&healthResponse{})
	if err != nil {
		return nil, err
	}
	ready, err := schema(&readyResponse{})
	if err != nil {
		return nil, err
	}
	errBody, err := schema(&errorResponse{})
	if err != nil {
		return nil, err
	}

	askReq.Value.Properties["question"].Value.WithMinLength(1).WithMaxLength(answer.MaxQuestionLength)
	askReq.Value.Required = []string{"question"}

	response := func(desc string, ref *openapi3.SchemaRef) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchemaRef(ref)}
	}

	ask := &openapi3.Operation{
		OperationID: "ask",
		Summary:     "Answer a question from the indexed papers",
		RequestBody: &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(askReq),
		},
		Responses: openapi3.Responses{
			"200": response("The generated answer and the papers it drew on", askResp),
			"400": response("Malformed question", errBody),
			"401": response("Missing or invalid bearer token", errBody),
			"429": response("Rate limit exceeded", errBody),
			"503": response("Index empty or a provider is unavailable", errBody),
			"504": response("The question timed out", errBody),
		},
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "paperqa",
			Description: "Question answering over a corpus of research papers.",
			Version:     version,
		},
		Paths: openapi3.Paths{
			"/api/ask": &openapi3.PathItem{Post: ask},
			"/api/health": &openapi3.PathItem{Get: &openapi3.Operation{
				OperationID: "health",
				Summary:     "Report the number of indexed chunks",
				Responses: openapi3.Responses{
					"200": response("Vector store readable", health),
					"503": response("Vector store unreadable", health),
				},
			}},
			"/api/ready": &openapi3.PathItem{Get: &openapi3.Operation{
				OperationID: "ready",
				Summary:     "Probe every dependency",
				Responses: openapi3.Responses{
					"200": response("All dependencies reachable", ready),
					"503": response("At least one dependency failed", ready),
				},
			}},
		},
	}
	return json.Marshal(doc)
}
