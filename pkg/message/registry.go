package message

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Registry resolves schema classes to schemas. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates a registry holding the given schemas.
func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Name] = s
	}
	return r
}

// Register adds or replaces a schema.
func (r *Registry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = s
}

// Get returns the schema registered under class.
func (r *Registry) Get(class string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[class]
	if !ok {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "schema class %q is not registered", class).
			WithDetail("schema_class", class)
	}
	return s, nil
}

// schemaDocument is the YAML layout of a schema file:
//
//	schemas:
//	  - name: com.example.Order
//	    fields:
//	      - name: order_number
//	        kind: string
//	      - name: created_at
//	        kind: message
//	        type_name: .google.protobuf.Timestamp
type schemaDocument struct {
	Schemas []schemaSpec `yaml:"schemas"`
}

type schemaSpec struct {
	Name   string      `yaml:"name"`
	Fields []fieldSpec `yaml:"fields"`
}

type fieldSpec struct {
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"kind"`
	Cardinality string      `yaml:"cardinality"`
	TypeName    string      `yaml:"type_name"`
	Fields      []fieldSpec `yaml:"fields"`
}

// LoadRegistry reads a YAML schema file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "failed to read schema file").
			WithDetail("path", path)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses YAML schema documents.
func ParseRegistry(data []byte) (*Registry, error) {
	var doc schemaDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "failed to parse schema file")
	}

	r := NewRegistry()
	for _, spec := range doc.Schemas {
		if spec.Name == "" {
			return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "schema without name")
		}
		fields, err := buildFields(spec.Fields)
		if err != nil {
			return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "invalid schema").
				WithDetail("schema", spec.Name)
		}
		r.Register(&Schema{Name: spec.Name, Fields: fields})
	}
	return r, nil
}

func buildFields(specs []fieldSpec) ([]*FieldSchema, error) {
	fields := make([]*FieldSchema, 0, len(specs))
	for _, fs := range specs {
		kind, err := ParseKind(fs.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		card, err := ParseCardinality(fs.Cardinality)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		children, err := buildFields(fs.Fields)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		fields = append(fields, &FieldSchema{
			Name:        fs.Name,
			Cardinality: card,
			Kind:        kind,
			TypeName:    fs.TypeName,
			Fields:      children,
		})
	}
	return fields, nil
}
