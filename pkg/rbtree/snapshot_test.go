package rbtree_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

const threeNodesJSON = `{"key":20,"color":"BLACK","left":{"key":10,"color":"RED"},"right":{"key":30,"color":"RED"}}`

func nodeFromJSON(t *testing.T, data string) *rbtree.Node {
	t.Helper()

	var view rbtree.View

	require.NoError(t, json.Unmarshal([]byte(data), &view))

	node, err := rbtree.FromView(&view)
	require.NoError(t, err)

	return node
}

func TestSnapshot_JSON(t *testing.T) {
	t.Parallel()

	tree := rbtree.New()
	tree.Insert(10)
	tree.Insert(20)
	tree.Insert(30)

	data, err := json.Marshal(tree.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, threeNodesJSON, string(data))

	empty, err := json.Marshal(rbtree.New().Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "null", string(empty))
}

func TestSnapshot_YAML(t *testing.T) {
	t.Parallel()

	tree := rbtree.New()
	tree.Insert(1)
	tree.Insert(2)

	data, err := yaml.Marshal(tree.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "key: 1\ncolor: BLACK\nright:\n    key: 2\n    color: RED\n", string(data))
}

func TestFromView_RestoresParents(t *testing.T) {
	t.Parallel()

	root := nodeFromJSON(t, threeNodesJSON)

	assert.Nil(t, root.Parent)
	assert.Same(t, root, root.Left.Parent)
	assert.Same(t, root, root.Right.Parent)
	assert.Equal(t, arena.Red, root.Right.Color)
	assert.Equal(t, []int32{10, 20, 30}, root.InOrder())
	assert.Equal(t, 3, root.Len())
	assert.Equal(t, 2, root.Height())
	assert.Equal(t, 0, root.BlackHeight())
	require.NoError(t, root.Validate())
}

func TestFromView_BadColor(t *testing.T) {
	t.Parallel()

	var view rbtree.View

	require.NoError(t, json.Unmarshal([]byte(`{"key":1,"color":"BLACK","left":{"key":0,"color":"PINK"}}`), &view))

	_, err := rbtree.FromView(&view)
	require.ErrorIs(t, err, rbtree.ErrBadView)

	node, err := rbtree.FromView(nil)
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestValidate_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
		want error
	}{
		{
			name: "red_root",
			json: `{"key":1,"color":"RED"}`,
			want: rbtree.ErrRootColor,
		},
		{
			name: "red_red",
			json: `{"key":20,"color":"BLACK","left":{"key":10,"color":"RED","left":{"key":5,"color":"RED"}}}`,
			want: rbtree.ErrRedRed,
		},
		{
			name: "black_height",
			json: `{"key":20,"color":"BLACK","left":{"key":10,"color":"BLACK"}}`,
			want: rbtree.ErrBlackHeight,
		},
		{
			name: "left_greater",
			json: `{"key":20,"color":"BLACK","left":{"key":21,"color":"RED"}}`,
			want: rbtree.ErrOrder,
		},
		{
			name: "deep_order",
			json: `{"key":20,"color":"BLACK","left":{"key":10,"color":"BLACK","right":{"key":25,"color":"RED"}},` +
				`"right":{"key":30,"color":"BLACK"}}`,
			want: rbtree.ErrOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, nodeFromJSON(t, tt.json).Validate(), tt.want)
		})
	}
}

func TestValidate_DuplicateOnTheRight(t *testing.T) {
	t.Parallel()

	root := nodeFromJSON(t, `{"key":20,"color":"BLACK","right":{"key":20,"color":"RED"}}`)
	require.NoError(t, root.Validate())
}

func TestValidate_DuplicateOnTheLeft(t *testing.T) {
	t.Parallel()

	root := nodeFromJSON(t, `{"key":5,"color":"BLACK","left":{"key":5,"color":"RED"},"right":{"key":5,"color":"RED"}}`)
	require.NoError(t, root.Validate())

	// Equal keys may sit on either side, but never out of order deeper down.
	bad := nodeFromJSON(t, `{"key":5,"color":"BLACK","left":{"key":5,"color":"BLACK","right":{"key":6,"color":"RED"}},`+
		`"right":{"key":5,"color":"BLACK"}}`)
	require.ErrorIs(t, bad.Validate(), rbtree.ErrOrder)
}

func TestValidate_BrokenParent(t *testing.T) {
	t.Parallel()

	root := nodeFromJSON(t, threeNodesJSON)
	root.Right.Parent = root.Left

	require.ErrorIs(t, root.Validate(), rbtree.ErrLinks)

	var empty *rbtree.Node

	require.NoError(t, empty.Validate())
}
