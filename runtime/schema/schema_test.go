package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/compiler/workflow"
)

func findingRegistry() map[string]workflow.SchemaSpec {
	return map[string]workflow.SchemaSpec{
		"Finding": {
			Name: "Finding",
			Fields: []workflow.FieldSpec{
				{Name: "title", Type: workflow.FieldType{Kind: "string"}},
				{Name: "score", Type: workflow.FieldType{Kind: "float"}, Optional: true},
			},
		},
	}
}

func TestValidateAcceptsWellFormedObject(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	v, err := c.Validate(`{"title": "bug"}`)
	require.NoError(t, err)
	m := v.(map[string]any)
	require.Equal(t, "bug", m["title"])
}

func TestValidateStripsCodeFence(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	_, err = c.Validate("```json\n{\"title\": \"fenced\"}\n```")
	require.NoError(t, err)
}

func TestValidateAcceptsNullOptionalField(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	v, err := c.Validate(`{"title": "bug", "score": null}`)
	require.NoError(t, err)
	m := v.(map[string]any)
	require.Equal(t, "bug", m["title"])
	require.Nil(t, m["score"])
}

func TestValidateRejectsNullRequiredField(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	_, err = c.Validate(`{"title": null}`)
	require.Error(t, err)
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	_, err = c.Validate(`{"score": 1.0}`)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, KindValidation, ve.Kind)
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	_, err = c.Validate("not json at all")
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, KindJSONParse, ve.Kind)
}

func TestValidateUnwrapsNestedJSONString(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	// The model sometimes double-encodes: the whole object arrives as a
	// JSON string containing JSON.
	v, err := c.Validate(`"{\"title\": \"nested\"}"`)
	require.NoError(t, err)
	m := v.(map[string]any)
	require.Equal(t, "nested", m["title"])
}

func TestValidateListSchema(t *testing.T) {
	c, err := Compile("Finding", true, findingRegistry())
	require.NoError(t, err)
	v, err := c.Validate(`[{"title": "a"}, {"title": "b"}]`)
	require.NoError(t, err)
	list := v.([]any)
	require.Len(t, list, 2)
}

func TestFallbackForListSchemaIsEmptyArray(t *testing.T) {
	c, err := Compile("Finding", true, findingRegistry())
	require.NoError(t, err)
	require.Equal(t, []any{}, c.Fallback())
}

func TestFallbackForObjectSchemaIsEmptyObject(t *testing.T) {
	c, err := Compile("Finding", false, findingRegistry())
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, c.Fallback())
}

func TestCompileUnknownSchemaIsAnError(t *testing.T) {
	_, err := Compile("Missing", false, findingRegistry())
	require.Error(t, err)
}

func TestRefFieldResolvesAgainstRegistry(t *testing.T) {
	registry := findingRegistry()
	registry["Report"] = workflow.SchemaSpec{
		Name: "Report",
		Fields: []workflow.FieldSpec{
			{Name: "best", Type: workflow.FieldType{Kind: "ref", Ref: "Finding"}},
		},
	}
	c, err := Compile("Report", false, registry)
	require.NoError(t, err)
	_, err = c.Validate(`{"best": {"title": "top"}}`)
	require.NoError(t, err)
}
