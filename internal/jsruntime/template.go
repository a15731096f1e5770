package jsruntime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/markupc/internal/errors"
)

// Slot names a placeholder declaration the compiled config is injected into.
type Slot string

const (
	SlotPlugins        Slot = "plugins"
	SlotRegisteredVars Slot = "registeredVars"
	SlotRootContext    Slot = "rootContext"
	SlotTagsConfig     Slot = "tagsConfig"
)

// Slots lists every slot, in declaration order of the core parser.
var Slots = []Slot{SlotPlugins, SlotRegisteredVars, SlotRootContext, SlotTagsConfig}

var slotPattern = regexp.MustCompile(`\nvar (plugins|registeredVars|rootContext|tagsConfig);`)

// Template is a concatenated runtime source split around its slot
// declarations. It is parsed once and may be filled any number of times.
type Template struct {
	// parts has one more element than slots; slots[i] sits between
	// parts[i] and parts[i+1].
	parts []string
	slots []Slot
}

// ParseTemplate splits src around its slot declarations. Every slot must be
// declared exactly once.
func ParseTemplate(src string) (*Template, error) {
	seen := make(map[Slot]int, len(Slots))
	t := &Template{}

	last := 0
	for _, loc := range slotPattern.FindAllStringSubmatchIndex(src, -1) {
		slot := Slot(src[loc[2]:loc[3]])
		seen[slot]++
		t.parts = append(t.parts, src[last:loc[0]])
		t.slots = append(t.slots, slot)
		last = loc[1]
	}
	t.parts = append(t.parts, src[last:])

	for _, slot := range Slots {
		switch n := seen[slot]; {
		case n == 0:
			return nil, errors.NewTemplateError(fmt.Sprintf("missing declaration of %q", slot)).
				WithContext("slot", string(slot))
		case n > 1:
			return nil, errors.NewTemplateError(fmt.Sprintf("%q is declared %d times", slot, n)).
				WithContext("slot", string(slot))
		}
	}

	return t, nil
}

// Fill replaces each slot declaration with an initialized one,
// "\nvar NAME=VALUE;". Every slot must have a value.
func (t *Template) Fill(values map[Slot]string) (string, error) {
	var sb strings.Builder
	for i, slot := range t.slots {
		value, ok := values[slot]
		if !ok {
			return "", errors.NewTemplateError(fmt.Sprintf("no value for %q", slot)).
				WithContext("slot", string(slot))
		}
		sb.WriteString(t.parts[i])
		sb.WriteString("\nvar ")
		sb.WriteString(string(slot))
		sb.WriteByte('=')
		sb.WriteString(value)
		sb.WriteByte(';')
	}
	sb.WriteString(t.parts[len(t.parts)-1])

	return sb.String(), nil
}
