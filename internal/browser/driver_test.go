// File: internal/browser/driver_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementAttr(t *testing.T) {
	el := &Element{Attributes: map[string]string{"src": "/a.png", "class": "tile selected"}}
	assert.Equal(t, "/a.png", el.Attr("src"))
	assert.Equal(t, "", el.Attr("missing"))

	var nilEl *Element
	assert.Equal(t, "", nilEl.Attr("src"))
}

func TestElementHasClass(t *testing.T) {
	el := &Element{Attributes: map[string]string{"class": "  rc-imageselect-tile \n rc-imageselect-tileselected "}}
	assert.True(t, el.HasClass("rc-imageselect-tileselected"))
	assert.True(t, el.HasClass("rc-imageselect-tile"))
	assert.False(t, el.HasClass("rc-image"))

	empty := &Element{}
	assert.False(t, empty.HasClass("anything"))
}

func TestSplitClasses(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitClasses(" a\tb \n c"))
	assert.Empty(t, splitClasses("   "))
}

func TestCombineContextCancelsWithSecondary(t *testing.T) {
	parent := context.Background()
	secondary, cancelSecondary := context.WithCancel(context.Background())

	combined, cancel := combineContext(parent, secondary)
	defer cancel()

	cancelSecondary()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context did not observe secondary cancellation")
	}
}

func TestCombineContextKeepsSecondaryDeadline(t *testing.T) {
	parent := context.Background()
	deadline := time.Now().Add(50 * time.Millisecond)
	secondary, cancelSecondary := context.WithDeadline(context.Background(), deadline)
	defer cancelSecondary()

	combined, cancel := combineContext(parent, secondary)
	defer cancel()

	got, ok := combined.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, deadline, got, time.Millisecond)
}

func TestCombineContextBackgroundSecondaryIsPassthrough(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	combined, cancel := combineContext(parent, context.Background())
	defer cancel()

	cancelParent()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context did not observe parent cancellation")
	}
}
