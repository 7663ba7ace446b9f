package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_LookupHitAndMiss(t *testing.T) {
	idx := NewIndex([]Entry{
		{Name: "echo", Category: CategoryQuery, Complexity: ComplexitySimple, TemplateID: "echo.tpl"},
	}, map[string]string{
		"echo.tpl": "print({message})",
	})

	entry, ok := idx.Lookup("echo")
	assert.True(t, ok)
	assert.Equal(t, CategoryQuery, entry.Category)

	_, ok = idx.Lookup("does-not-exist")
	assert.False(t, ok, "a lookup miss is an 'unknown' result, not an error")
}

func TestIndex_TemplateFor(t *testing.T) {
	idx := NewIndex([]Entry{
		{Name: "echo", TemplateID: "echo.tpl"},
	}, map[string]string{
		"echo.tpl": "print({message})",
	})

	tpl, ok := idx.TemplateFor("echo")
	assert.True(t, ok)
	assert.Equal(t, "print({message})", tpl)

	_, ok = idx.TemplateFor("unknown")
	assert.False(t, ok)
}

func TestIndex_ImmutableAfterConstruction(t *testing.T) {
	entries := []Entry{{Name: "echo", TemplateID: "echo.tpl"}}
	templates := map[string]string{"echo.tpl": "print({message})"}

	idx := NewIndex(entries, templates)

	entries[0].Name = "mutated"
	templates["echo.tpl"] = "mutated"

	e, ok := idx.Lookup("echo")
	assert.True(t, ok, "the index must hold its own copy, not alias the caller's slice")
	assert.Equal(t, "echo", e.Name)

	tpl, _ := idx.Template("echo.tpl")
	assert.Equal(t, "print({message})", tpl)
}
