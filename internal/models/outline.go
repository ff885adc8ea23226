package models

import "strings"

// ComponentKind distinguishes outline components
type ComponentKind string

const (
	KindFunction ComponentKind = "function"
	KindClass    ComponentKind = "class"
)

// Attribute is a class attribute declared in an outline
type Attribute struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ComponentSpec describes one function or class of an outline
type ComponentSpec struct {
	Kind            ComponentKind   `json:"type"`
	Name            string          `json:"name"`
	Signature       string          `json:"signature,omitempty"`
	Description     string          `json:"description,omitempty"`
	BodyPlaceholder string          `json:"body_placeholder,omitempty"`
	Attributes      []Attribute     `json:"attributes,omitempty"`
	Methods         []ComponentSpec `json:"methods,omitempty"`
}

// HasMethod reports whether a class declares the named method
func (c ComponentSpec) HasMethod(name string) bool {
	for _, m := range c.Methods {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Outline is the parsed structural plan of a generated module
type Outline struct {
	ModuleName         string          `json:"module_name,omitempty"`
	ModuleDocstring    string          `json:"module_docstring,omitempty"`
	Imports            []string        `json:"imports,omitempty"`
	Components         []ComponentSpec `json:"components"`
	MainExecutionBlock string          `json:"main_execution_block,omitempty"`
}

// MethodKey builds the component key of a class method
func MethodKey(className, methodName string) string {
	return className + "." + methodName
}

// Leaf is a unit of detail generation: a top-level function or a class method
type Leaf struct {
	Key       string
	Component ComponentSpec
	// Parent is set for methods
	Parent *ComponentSpec
}

// Leaves lists every detail-generation unit in declaration order
func (o *Outline) Leaves() []Leaf {
	var leaves []Leaf
	for i := range o.Components {
		c := &o.Components[i]
		switch c.Kind {
		case KindFunction:
			leaves = append(leaves, Leaf{Key: c.Name, Component: *c})
		case KindClass:
			for _, m := range c.Methods {
				leaves = append(leaves, Leaf{Key: MethodKey(c.Name, m.Name), Component: m, Parent: c})
			}
		}
	}
	return leaves
}

// ComponentResults maps a component key to its generated code. A nil or
// missing entry marks a failed component.
type ComponentResults map[string]*string

// Code returns the generated code for key when present and non-blank
func (r ComponentResults) Code(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil || strings.TrimSpace(*v) == "" {
		return "", false
	}
	return *v, true
}

// Failed lists the keys among want that have no usable code
func (r ComponentResults) Failed(want []string) []string {
	var failed []string
	for _, k := range want {
		if _, ok := r.Code(k); !ok {
			failed = append(failed, k)
		}
	}
	return failed
}
