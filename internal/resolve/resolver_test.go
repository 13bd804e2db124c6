package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainrun/chainrun/internal/state"
)

func testState() *state.State {
	return state.New(map[string]any{
		"name":  "ada",
		"count": 3,
		"user":  map[string]any{"id": "u-1", "tags": []any{"admin"}},
		"flag":  true,
	})
}

func TestResolve_Literals(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"num":  42,
		"text": "plain literal",
		"nil":  nil,
	}, testState())

	assert.Equal(t, 42, args["num"])
	assert.Equal(t, "plain literal", args["text"])
	assert.Nil(t, args["nil"])
}

func TestResolve_StateReference(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"who":    "state.name",
		"nested": "state.user.id",
	}, testState())

	assert.Equal(t, "ada", args["who"])
	assert.Equal(t, "u-1", args["nested"])
}

func TestResolve_BareKey(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"who":     "name",
		"missing": "not_a_key",
	}, testState())

	assert.Equal(t, "ada", args["who"])
	// A bare string that matches no state key stays a literal.
	assert.Equal(t, "not_a_key", args["missing"])
}

func TestResolve_MissingStateKeyIsUndefined(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{"v": "state.absent"}, testState())

	assert.True(t, IsUndefined(args["v"]))
}

func TestResolve_SingleTokenKeepsType(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"n":    "${{ count }}",
		"u":    "${{ state.user }}",
		"flag": "${{ flag }}",
	}, testState())

	assert.Equal(t, 3, args["n"])
	assert.Equal(t, map[string]any{"id": "u-1", "tags": []any{"admin"}}, args["u"])
	assert.Equal(t, true, args["flag"])
}

func TestResolve_InterpolationSplices(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"greeting": "hello ${{ name }}, you have ${{ count }} items",
	}, testState())

	assert.Equal(t, "hello ada, you have 3 items", args["greeting"])
}

func TestResolve_InterpolationCompositeUsesJSON(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"msg": "user=${{ state.user.tags }}",
	}, testState())

	assert.Equal(t, `user=["admin"]`, args["msg"])
}

func TestResolve_InterpolationMissingKey(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"msg": "value: ${{ state.absent }}",
	}, testState())

	assert.Equal(t, "value: <undefined>", args["msg"])
}

func TestResolve_UnclosedTokenVerbatim(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{"msg": "broken ${{ name"}, testState())

	assert.Equal(t, "broken ${{ name", args["msg"])
}

func TestResolve_RecursesIntoComposites(t *testing.T) {
	r := New()
	args := r.Resolve(map[string]any{
		"payload": map[string]any{
			"who":  "state.name",
			"deep": map[string]any{"n": "${{ count }}"},
		},
		"list": []any{"state.name", "literal", 7},
	}, testState())

	payload := args["payload"].(map[string]any)
	assert.Equal(t, "ada", payload["who"])
	assert.Equal(t, 3, payload["deep"].(map[string]any)["n"])

	list := args["list"].([]any)
	require.Len(t, list, 3)
	assert.Equal(t, "ada", list[0])
	assert.Equal(t, "literal", list[1])
	assert.Equal(t, 7, list[2])
}

func TestUndefined_MarshalsAsNull(t *testing.T) {
	data, err := Undefined.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
	assert.Equal(t, "<undefined>", Undefined.String())
}
