package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 1 << 20

const schemaCreateOrder = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["restaurant_id", "items", "total_amount"],
  "properties": {
    "restaurant_id": { "type": ["string", "integer"], "minLength": 1 },
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["item_id", "quantity", "price"],
        "properties": {
          "item_id": { "type": ["string", "integer"], "minLength": 1 },
          "quantity": { "type": "integer", "minimum": 1 },
          "price": { "type": ["number", "string"] }
        }
      }
    },
    "total_amount": { "type": ["number", "string"] },
    "delivery_address": { "type": "string" },
    "payment_method": { "type": "string" }
  }
}`

const schemaRegister = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["email", "password"],
  "properties": {
    "email": { "type": "string", "minLength": 3 },
    "password": { "type": "string", "minLength": 1 },
    "name": { "type": "string" }
  }
}`

const schemaLogin = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["email", "password"],
  "properties": {
    "email": { "type": "string", "minLength": 1 },
    "password": { "type": "string", "minLength": 1 }
  }
}`

const schemaGraphQL = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": { "type": "string", "minLength": 1 },
    "variables": { "type": ["object", "null"] },
    "operationName": { "type": ["string", "null"] }
  }
}`

var (
	createOrderSchema = mustSchema(schemaCreateOrder)
	registerSchema    = mustSchema(schemaRegister)
	loginSchema       = mustSchema(schemaLogin)
	graphQLSchema     = mustSchema(schemaGraphQL)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return s
}

func validateJSON(schema *gojsonschema.Schema, body []byte) error {
	if !json.Valid(body) {
		return errors.New("request body must be valid JSON")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("request does not conform to schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// validateBody rejects bodies that do not match schema with a 400 before any
// downstream is called. The body is restored for the next handler.
func validateBody(schema *gojsonschema.Schema) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "request body too large or unreadable")
				return
			}
			if err := validateJSON(schema, body); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

// flexString accepts a JSON string or number, since clients send ids both ways.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
