package editor

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwiki/api/internal/blocks"
)

func newTestCanvas(list ...blocks.Block) (*Canvas, *int) {
	c := NewCanvas(blocks.Document{ID: "doc", Name: "Doc", Blocks: list})
	changes := 0
	c.OnChange(func(blocks.Document) { changes++ })
	return c, &changes
}

func text(id, s string) blocks.Block {
	return blocks.Block{ID: id, Type: blocks.TypeText, Content: blocks.Text(s)}
}

func blockIDs(list []blocks.Block) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

func TestDropFromPaletteInsertsAfterTarget(t *testing.T) {
	c, changes := newTestCanvas(text("a", ""), text("b", ""))

	require.True(t, c.Drop(DragSource{PaletteType: blocks.TypeQuote}, "a"))
	list := c.Blocks()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, blocks.TypeQuote, list[1].Type)
	assert.Equal(t, "b", list[2].ID)

	require.True(t, c.Drop(DragSource{PaletteType: blocks.TypeTable}, ""))
	list = c.Blocks()
	assert.Equal(t, blocks.TypeTable, list[3].Type)
	assert.Equal(t, 2, *changes)

	assert.False(t, c.Drop(DragSource{PaletteType: "spreadsheet"}, "a"))
	assert.False(t, c.Drop(DragSource{}, "a"))
	assert.Equal(t, 2, *changes)
}

func TestDropExistingBlockReorders(t *testing.T) {
	c, changes := newTestCanvas(text("a", ""), text("b", ""), text("c", ""))

	require.True(t, c.Drop(DragSource{BlockID: "a"}, "c"))
	assert.Equal(t, []string{"b", "c", "a"}, blockIDs(c.Blocks()))

	assert.False(t, c.Drop(DragSource{BlockID: "b"}, "b"), "dropping on itself is a no-op")
	assert.Equal(t, 1, *changes)
}

func TestQuickAdd(t *testing.T) {
	c, changes := newTestCanvas()

	assert.False(t, c.QuickAdd("   "))
	require.True(t, c.QuickAdd("  remember the milk \n"))
	list := c.Blocks()
	require.Len(t, list, 1)
	assert.Equal(t, blocks.TypeText, list[0].Type)
	assert.Equal(t, blocks.Text("remember the milk"), list[0].Content)
	assert.Equal(t, 1, *changes)
}

func TestOnChangeOnlyFiresWhenListChanges(t *testing.T) {
	c, _ := newTestCanvas(text("a", "x"))
	var seen []blocks.Document
	unsubscribe := c.OnChange(func(d blocks.Document) { seen = append(seen, d) })

	root := c.Root()
	assert.False(t, root.Update("a", blocks.Patch{Content: blocks.Text("x")}))
	assert.False(t, root.MoveUp("a"))
	assert.False(t, root.Delete("missing"))
	assert.Empty(t, seen)

	assert.True(t, root.Update("a", blocks.Patch{Content: blocks.Text("y")}))
	require.Len(t, seen, 1)
	assert.Equal(t, blocks.Text("y"), seen[0].Blocks[0].Content)
	assert.Equal(t, uint64(1), c.Version())

	unsubscribe()
	root.Update("a", blocks.Patch{Content: blocks.Text("z")})
	assert.Len(t, seen, 1)
}

func TestSectionScope(t *testing.T) {
	section := blocks.Block{ID: "s", Type: blocks.TypeSection, Content: blocks.Section{Title: "S"}}
	c, changes := newTestCanvas(text("a", ""), section)

	scope, ok := c.Section("s")
	require.True(t, ok)
	created, ok := scope.InsertAfter(blocks.TypeHeading, -1)
	require.True(t, ok)
	assert.Equal(t, []string{created.ID}, blockIDs(scope.Blocks()))
	assert.Equal(t, []string{"a", "s"}, blockIDs(c.Blocks()))
	assert.Equal(t, 1, *changes)

	require.True(t, scope.QuickAdd("note"))
	assert.Len(t, scope.Blocks(), 2)

	_, ok = c.Section("a")
	assert.False(t, ok, "text blocks have no children")
	_, ok = c.Section("missing")
	assert.False(t, ok)
}

func TestRename(t *testing.T) {
	c, changes := newTestCanvas()
	assert.False(t, c.Rename("  "))
	assert.False(t, c.Rename("Doc"))
	assert.True(t, c.Rename("Handbook"))
	assert.Equal(t, "Handbook", c.Document().Name)
	assert.Equal(t, 1, *changes)
}

func TestSnapshotEncodesBlocks(t *testing.T) {
	c, _ := newTestCanvas(text("a", "x"))
	out, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a","type":"text","content":"x"}]`, string(out))
}

func TestConcurrentQuickAddKeepsEveryBlock(t *testing.T) {
	c := NewCanvas(blocks.Document{ID: "doc"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.QuickAdd(fmt.Sprintf("line %d", i))
		}(i)
	}
	wg.Wait()

	list := c.Blocks()
	require.Len(t, list, 50)
	seen := map[string]bool{}
	for _, b := range list {
		assert.False(t, seen[b.ID], "duplicate id %s", b.ID)
		seen[b.ID] = true
	}
	assert.Equal(t, uint64(50), c.Version())
}
