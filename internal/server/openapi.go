package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var openapiSpec []byte

// loadRouter parses and validates the embedded API document.
func loadRouter(ctx context.Context) (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("loading openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("building openapi router: %w", err)
	}
	return router, nil
}

// validateRequests rejects requests that do not match the API document.
// Paths the document does not describe pass through untouched.
func validateRequests(router routers.Router, next http.Handler) http.Handler {
	opts := &openapi3filter.Options{MultiError: true}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, params, err := router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		in := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route:      route,
			Options:    opts,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), in); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validationMessage renders the first failure without the schema dump.
func validationMessage(err error) string {
	var multi openapi3.MultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		err = multi[0]
	}
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err.Error()
	}

	var parts []string
	switch {
	case reqErr.Parameter != nil:
		parts = append(parts, fmt.Sprintf("parameter %q", reqErr.Parameter.Name))
	case reqErr.RequestBody != nil:
		parts = append(parts, "request body")
	}
	if reqErr.Reason != "" {
		parts = append(parts, reqErr.Reason)
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			parts = append(parts, strings.Join(ptr, "."))
		}
		parts = append(parts, schemaErr.Reason)
	} else if reqErr.Err != nil {
		parts = append(parts, reqErr.Err.Error())
	}
	return strings.Join(parts, ": ")
}
