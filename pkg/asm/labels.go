package asm

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Labeler assigns block labels for one emission pass. Anonymous blocks get
// __block_<n> with n counting from zero across the whole module; a fresh
// Labeler restarts the count. Each label belongs to exactly one block.
type Labeler struct {
	count  int
	labels map[any]Label
	owners map[Label]any
}

// NewLabeler creates a labeler for one module
func NewLabeler() *Labeler {
	return &Labeler{
		labels: make(map[any]Label),
		owners: make(map[Label]any),
	}
}

// Block returns the label for the block identified by key. The same key
// always yields the same label. A label already given to another block
// is an error: the assembler would reject the duplicate definition.
func (l *Labeler) Block(key any, name string) (Label, error) {
	if lbl, ok := l.labels[key]; ok {
		return lbl, nil
	}
	var lbl Label
	if name == "" {
		lbl = Label(fmt.Sprintf(".__block_%d", l.count))
		l.count++
	} else {
		lbl = LocalLabel(name)
	}
	if _, taken := l.owners[lbl]; taken {
		return "", fmt.Errorf("label %s for block %q is already defined by another block", lbl, name)
	}
	l.labels[key] = lbl
	l.owners[lbl] = key
	return lbl, nil
}

// LocalLabel turns a block name into a local label. Dots are reserved in
// the label grammar so they become underscores; a leading dot then marks
// the label as local.
func LocalLabel(name string) Label {
	return Label("." + strings.ReplaceAll(Symbol(name), ".", "_"))
}

// Symbol canonicalizes a symbol name so that equal names from different
// front ends produce identical labels
func Symbol(name string) string {
	return norm.NFC.String(name)
}
