package example

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemas = `
schemas:
  detection:
    features:
      - {name: image/height, type: int64, length: fixed}
      - {name: image/encoded, type: bytes, length: fixed}
      - {name: image/object/bbox/xmin, type: float, length: var}
      - {name: image/object/class/text, type: bytes, length: var}
  image:
    image_feature: image/encoded
    features:
      - {name: image/encoded, type: bytes}
`

func loadTestSchemas(t *testing.T) map[string]*Schema {
	t.Helper()
	schemas, err := ParseSchemas([]byte(testSchemas))
	require.NoError(t, err)
	return schemas
}

func TestParseSchemas(t *testing.T) {
	schemas := loadTestSchemas(t)
	require.Len(t, schemas, 2)

	image := schemas["image"]
	require.NotNil(t, image)
	assert.Equal(t, "image", image.Name())
	assert.Equal(t, DefaultImageFeature, image.ImageFeature())
	assert.Equal(t, []FeatureSpec{{Name: "image/encoded", Kind: KindBytes, Length: Fixed}}, image.Specs())
}

func TestParseSchemasErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "schemas: {}"},
		{"bad yaml", "schemas: ["},
		{"unknown type", "schemas:\n  s:\n    features:\n      - {name: image/encoded, type: double}"},
		{"no image feature", "schemas:\n  s:\n    features:\n      - {name: image/height, type: int64}"},
		{"image not bytes", "schemas:\n  s:\n    features:\n      - {name: image/encoded, type: int64}"},
		{"image var", "schemas:\n  s:\n    features:\n      - {name: image/encoded, type: bytes, length: var}"},
		{"bad length", "schemas:\n  s:\n    features:\n      - {name: image/encoded, type: bytes, length: ragged}"},
		{"duplicate", "schemas:\n  s:\n    features:\n      - {name: image/encoded, type: bytes}\n      - {name: image/encoded, type: bytes}"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSchemas([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSchemaSpecsAreCopied(t *testing.T) {
	specs := []FeatureSpec{{Name: "image/encoded", Kind: KindBytes, Length: Fixed}}
	s, err := NewSchema("s", "", specs)
	require.NoError(t, err)

	specs[0].Name = "mutated"
	s.Specs()[0].Name = "mutated too"

	assert.Equal(t, "image/encoded", s.Specs()[0].Name)
}

func TestValidate(t *testing.T) {
	detection := loadTestSchemas(t)["detection"]

	valid := func() *Example {
		ex := New()
		ex.SetInt64s("image/height", 10)
		ex.SetBytes("image/encoded", []byte("payload"))
		return ex
	}

	t.Run("valid without var features", func(t *testing.T) {
		assert.NoError(t, detection.Validate(valid()))
	})

	t.Run("valid with var features", func(t *testing.T) {
		ex := valid()
		ex.SetFloats("image/object/bbox/xmin", 0.1, 0.2, 0.3)
		ex.SetBytes("image/object/class/text")
		assert.NoError(t, detection.Validate(ex))
	})

	t.Run("missing fixed feature", func(t *testing.T) {
		ex := valid()
		delete(ex.Features, "image/height")
		assert.ErrorIs(t, detection.Validate(ex), ErrMissingFeature)
	})

	t.Run("wrong kind", func(t *testing.T) {
		ex := valid()
		ex.SetBytes("image/height", []byte("10"))
		assert.ErrorIs(t, detection.Validate(ex), ErrFeatureType)
	})

	t.Run("fixed feature with two values", func(t *testing.T) {
		ex := valid()
		ex.SetInt64s("image/height", 10, 20)
		assert.ErrorIs(t, detection.Validate(ex), ErrFeatureType)
	})

	t.Run("wrong var kind", func(t *testing.T) {
		ex := valid()
		ex.SetInt64s("image/object/bbox/xmin", 1)
		assert.ErrorIs(t, detection.Validate(ex), ErrFeatureType)
	})
}

func TestSchemaImage(t *testing.T) {
	s := loadTestSchemas(t)["image"]

	ex := New()
	ex.SetBytes("image/encoded", []byte("payload"))
	img, err := s.Image(ex)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), img)

	_, err = s.Image(New())
	assert.ErrorIs(t, err, ErrMissingFeature)
}
