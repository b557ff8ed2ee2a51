// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// CodeInvalidRequest tags bodies that are not JSON or do not match their schema.
const CodeInvalidRequest = "REQUEST_INVALID"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// RegisterRequest is the body of POST /users/register.
type RegisterRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Password string `json:"password"`
	Name     string `json:"name" jsonschema:"minLength=1,maxLength=100"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	ID       string `json:"id,omitempty" jsonschema:"pattern=^[0-7][0-9A-HJKMNP-TV-Za-hjkmnp-tv-z]{25}$"`
	Email    string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Password string `json:"password"`
	Name     string `json:"name" jsonschema:"minLength=1,maxLength=100"`
	Role     string `json:"role,omitempty" jsonschema:"enum=user,enum=admin"`
}

// requestSchema names a request body type and its schema document.
type requestSchema struct {
	name  string
	title string
	value any
}

var requestSchemas = []requestSchema{
	{"register", "Register request", &RegisterRequest{}},
	{"login", "Login request", &LoginRequest{}},
	{"create-user", "Create user request", &CreateUserRequest{}},
}

var (
	compileOnce sync.Once
	compiled    map[string]*jschema.Schema
	compileErr  error
)

// SchemaID returns the $id of the named request schema.
func SchemaID(name string) string {
	return "https://holomush.dev/schemas/accounts/" + name + ".schema.json"
}

// GenerateSchemas reflects every request body type into an indented JSON
// Schema document, keyed by name.
func GenerateSchemas() (map[string][]byte, error) {
	out := make(map[string][]byte, len(requestSchemas))
	for _, rs := range requestSchemas {
		data, err := generateSchema(rs)
		if err != nil {
			return nil, err
		}
		out[rs.name] = data
	}
	return out, nil
}

func generateSchema(rs requestSchema) ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(rs.value)
	schema.ID = jsonschema.ID(SchemaID(rs.name))
	schema.Title = rs.title

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.With("schema", rs.name).Wrap(err)
	}
	return data, nil
}

// compiledSchemas compiles every request schema once.
func compiledSchemas() (map[string]*jschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = compileSchemas()
	})
	return compiled, compileErr
}

func compileSchemas() (map[string]*jschema.Schema, error) {
	c := jschema.NewCompiler()
	for _, rs := range requestSchemas {
		data, err := generateSchema(rs)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.With("schema", rs.name).Wrap(err)
		}
		if err := c.AddResource(SchemaID(rs.name), doc); err != nil {
			return nil, oops.With("schema", rs.name).Wrap(err)
		}
	}

	out := make(map[string]*jschema.Schema, len(requestSchemas))
	for _, rs := range requestSchemas {
		sch, err := c.Compile(SchemaID(rs.name))
		if err != nil {
			return nil, oops.With("schema", rs.name).Wrap(err)
		}
		out[rs.name] = sch
	}
	return out, nil
}

// decodeBody reads r's body, validates it against the named schema, and
// decodes it into dst.
func decodeBody(r *http.Request, w http.ResponseWriter, schemaName string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(CodeInvalidRequest).Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return oops.Code(CodeInvalidRequest).Wrapf(err, "read request body")
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code(CodeInvalidRequest).Errorf("request body is not valid JSON")
	}

	schemas, err := compiledSchemas()
	if err != nil {
		return oops.With("operation", "compile request schemas").Wrap(err)
	}
	sch, ok := schemas[schemaName]
	if !ok {
		return oops.Errorf("unknown request schema %q", schemaName)
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code(CodeInvalidRequest).Errorf("%s", formatSchemaError(err))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code(CodeInvalidRequest).Errorf("request body does not match %s", schemaName)
	}
	return nil
}

// formatSchemaError flattens a validation error onto one line.
func formatSchemaError(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}
