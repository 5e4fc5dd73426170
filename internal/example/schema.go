package example

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFeature is returned when a fixed-length feature is absent.
	ErrMissingFeature = errors.New("missing required feature")
	// ErrFeatureType is returned when a feature carries the wrong list kind or length.
	ErrFeatureType = errors.New("unexpected feature type")
)

// DefaultImageFeature is the feature holding the encoded image payload.
const DefaultImageFeature = "image/encoded"

// Length is the cardinality rule of a schema feature.
type Length string

const (
	// Fixed features must be present with exactly one value.
	Fixed Length = "fixed"
	// Var features may be absent or hold any number of values.
	Var Length = "var"
)

// FeatureSpec describes one entry of a Schema.
type FeatureSpec struct {
	Name   string
	Kind   Kind
	Length Length
}

// Schema is an immutable feature-name-to-type mapping used to validate
// records. Build one with NewSchema or ParseSchemas.
type Schema struct {
	name         string
	imageFeature string
	specs        []FeatureSpec
}

// NewSchema validates specs and returns a Schema. An empty imageFeature means
// DefaultImageFeature, which must be declared as a fixed bytes feature.
func NewSchema(name, imageFeature string, specs []FeatureSpec) (*Schema, error) {
	if imageFeature == "" {
		imageFeature = DefaultImageFeature
	}

	seen := make(map[string]bool, len(specs))
	hasImage := false
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("schema %s: feature with empty name", name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("schema %s: duplicate feature %s", name, s.Name)
		}
		seen[s.Name] = true
		if s.Kind == KindNone {
			return nil, fmt.Errorf("schema %s: feature %s has no type", name, s.Name)
		}
		if s.Length != Fixed && s.Length != Var {
			return nil, fmt.Errorf("schema %s: feature %s has invalid length %q", name, s.Name, s.Length)
		}
		if s.Name == imageFeature {
			if s.Kind != KindBytes || s.Length != Fixed {
				return nil, fmt.Errorf("schema %s: image feature %s must be fixed bytes", name, s.Name)
			}
			hasImage = true
		}
	}
	if !hasImage {
		return nil, fmt.Errorf("schema %s: image feature %s is not declared", name, imageFeature)
	}

	copied := make([]FeatureSpec, len(specs))
	copy(copied, specs)
	return &Schema{name: name, imageFeature: imageFeature, specs: copied}, nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// ImageFeature returns the name of the feature holding the image payload.
func (s *Schema) ImageFeature() string { return s.imageFeature }

// Specs returns a copy of the feature specs.
func (s *Schema) Specs() []FeatureSpec {
	out := make([]FeatureSpec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Validate checks ex against the schema. Features not named by the schema
// are ignored.
func (s *Schema) Validate(ex *Example) error {
	for _, spec := range s.specs {
		f, ok := ex.Features[spec.Name]
		if !ok || f.Kind == KindNone {
			if spec.Length == Fixed {
				return fmt.Errorf("%w: %s", ErrMissingFeature, spec.Name)
			}
			continue
		}
		if f.Kind != spec.Kind {
			return fmt.Errorf("%w: %s is %s, want %s", ErrFeatureType, spec.Name, f.Kind, spec.Kind)
		}
		if spec.Length == Fixed && f.Len() != 1 {
			return fmt.Errorf("%w: %s has %d values, want 1", ErrFeatureType, spec.Name, f.Len())
		}
	}
	return nil
}

// Image returns the encoded image payload of a validated Example.
func (s *Schema) Image(ex *Example) ([]byte, error) {
	v, ok := ex.BytesValue(s.imageFeature)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingFeature, s.imageFeature)
	}
	return v, nil
}

type schemaFile struct {
	Schemas map[string]schemaDef `yaml:"schemas"`
}

type schemaDef struct {
	ImageFeature string       `yaml:"image_feature"`
	Features     []featureDef `yaml:"features"`
}

type featureDef struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Length string `yaml:"length"`
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "bytes", "string":
		return KindBytes, nil
	case "float", "float32":
		return KindFloat, nil
	case "int64":
		return KindInt64, nil
	default:
		return KindNone, fmt.Errorf("unknown feature type %q", s)
	}
}

// ParseSchemas decodes a YAML document of the form
//
//	schemas:
//	  <name>:
//	    image_feature: image/encoded
//	    features:
//	      - {name: image/encoded, type: bytes, length: fixed}
func ParseSchemas(data []byte) (map[string]*Schema, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	if len(file.Schemas) == 0 {
		return nil, errors.New("schema file defines no schemas")
	}

	names := make([]string, 0, len(file.Schemas))
	for name := range file.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]*Schema, len(names))
	for _, name := range names {
		def := file.Schemas[name]
		specs := make([]FeatureSpec, 0, len(def.Features))
		for _, fd := range def.Features {
			kind, err := parseKind(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("schema %s, feature %s: %w", name, fd.Name, err)
			}
			length := Length(fd.Length)
			if length == "" {
				length = Fixed
			}
			specs = append(specs, FeatureSpec{Name: fd.Name, Kind: kind, Length: length})
		}
		schema, err := NewSchema(name, def.ImageFeature, specs)
		if err != nil {
			return nil, err
		}
		out[name] = schema
	}
	return out, nil
}
