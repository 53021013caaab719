package recipe

import (
	"fmt"
	"regexp"
	"strings"
)

// EntryPoint is a console script declaration, "name = module:function".
type EntryPoint struct {
	Name     string
	Module   string
	Function string
}

var (
	entryPointName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	pythonDotted   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// ParseEntryPoint parses a console script declaration of the form
// "casq = casq.celldesigner2qual:main".
func ParseEntryPoint(s string) (EntryPoint, error) {
	name, target, found := strings.Cut(s, "=")
	if !found {
		return EntryPoint{}, fmt.Errorf("entry point %q is missing '='", s)
	}
	module, function, found := strings.Cut(target, ":")
	if !found {
		return EntryPoint{}, fmt.Errorf("entry point %q is missing ':' in its target", s)
	}

	ep := EntryPoint{
		Name:     strings.TrimSpace(name),
		Module:   strings.TrimSpace(module),
		Function: strings.TrimSpace(function),
	}

	switch {
	case ep.Name == "":
		return EntryPoint{}, fmt.Errorf("entry point %q has an empty name", s)
	case !entryPointName.MatchString(ep.Name):
		return EntryPoint{}, fmt.Errorf("entry point name %q is not a valid command name", ep.Name)
	case !pythonDotted.MatchString(ep.Module):
		return EntryPoint{}, fmt.Errorf("entry point %q: module %q is not a dotted Python path", s, ep.Module)
	case !pythonDotted.MatchString(ep.Function):
		return EntryPoint{}, fmt.Errorf("entry point %q: function %q is not a valid Python identifier", s, ep.Function)
	}

	return ep, nil
}

// String renders the canonical form, "name = module:function".
func (e EntryPoint) String() string {
	return fmt.Sprintf("%s = %s:%s", e.Name, e.Module, e.Function)
}

// Script emits the launcher stub installed into the environment's bin
// directory for this entry point. Dotted function targets are resolved
// through their first attribute.
func (e EntryPoint) Script() string {
	head := e.Function
	if i := strings.Index(head, "."); i >= 0 {
		head = head[:i]
	}
	return fmt.Sprintf(`#!/usr/bin/env python
import sys
from %s import %s
if __name__ == "__main__":
    sys.exit(%s())
`, e.Module, head, e.Function)
}
