package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetLevel("info")
	Debugf("hidden %d", 1)
	Infof("shown %d", 2)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
}

func TestJournalSortsFields(t *testing.T) {
	var buf bytes.Buffer
	SetJournalWriter(&buf)
	defer SetJournalWriter(nil)
	Journal("fill", map[string]any{"price": 100.75, "dir": "LONG"})
	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasSuffix(line, "[FILL] dir=LONG price=100.750000"), line)
}

func TestInfoBlockSkipsBlankLines(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetLevel("info")
	InfoBlock("a\n\n b \n")
	assert.Equal(t, 2, strings.Count(buf.String(), "level=INFO"))
}

func TestComponentPrefixBecomesAttr(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetLevel("info")

	Infof("[live] poll ok %d", 3)
	Infof("[not a component] plain")
	out := buf.String()
	assert.Contains(t, out, `msg="poll ok 3" component=live`)
	assert.Contains(t, out, `msg="[not a component] plain"`)
}

func TestSetFormatAfterOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	defer func() {
		SetFormat("text")
		SetOutput(nil)
	}()
	SetLevel("info")
	Warnf("[engine] slot busy")
	assert.Contains(t, buf.String(), `"component":"engine"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}
