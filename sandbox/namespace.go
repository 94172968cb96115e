package sandbox

import "sort"

// Capability classifies what a namespace entry grants to guest code.
type Capability int

const (
	// CapabilityBuiltin is a primitive operation taken from the host
	// interpreter's builtins (arithmetic helpers, container manipulation,
	// formatting, type introspection).
	CapabilityBuiltin Capability = iota
	// CapabilityModule is an allowlisted library module, bound under one or
	// more names.
	CapabilityModule
)

// ModuleBinding binds a namespace name to the library module it resolves to.
// Several bindings may share the same module (canonical name plus the
// conventional short alias).
type ModuleBinding struct {
	Alias  string
	Module string
}

// guestBuiltins is the closed set of interpreter builtins exposed to guest
// code. Anything not listed here does not exist inside the guest namespace.
// Reflection into the host interpreter (globals, locals, vars) is deliberately
// absent, as are file, process and network primitives.
var guestBuiltins = []string{
	"abs", "all", "any", "bin", "bool", "bytearray", "bytes", "callable",
	"chr", "classmethod", "complex", "dict", "dir", "divmod", "enumerate",
	"filter", "float", "format", "frozenset", "getattr", "hasattr", "hash",
	"hex", "id", "int", "isinstance", "issubclass", "iter", "len", "list",
	"map", "max", "memoryview", "min", "next", "object", "oct", "ord",
	"pow", "print", "property", "range", "repr", "reversed", "round",
	"set", "setattr", "slice", "sorted", "staticmethod", "str", "sum",
	"super", "tuple", "type", "zip",
}

// guestModules is the closed set of library modules seeded into the guest
// namespace: numeric arrays, dataframes, symbolic math, graph structures,
// statistics, date/time, serialization, regex and collection utilities.
// The plotting module is handled separately (see harness.go) because it
// needs its non-interactive backend selected before first use.
var guestModules = []ModuleBinding{
	{Alias: "numpy", Module: "numpy"},
	{Alias: "np", Module: "numpy"},
	{Alias: "pandas", Module: "pandas"},
	{Alias: "pd", Module: "pandas"},
	{Alias: "seaborn", Module: "seaborn"},
	{Alias: "sns", Module: "seaborn"},
	{Alias: "scipy", Module: "scipy"},
	{Alias: "sklearn", Module: "sklearn"},
	{Alias: "sympy", Module: "sympy"},
	{Alias: "networkx", Module: "networkx"},
	{Alias: "nx", Module: "networkx"},
	{Alias: "math", Module: "math"},
	{Alias: "statistics", Module: "statistics"},
	{Alias: "random", Module: "random"},
	{Alias: "datetime", Module: "datetime"},
	{Alias: "json", Module: "json"},
	{Alias: "re", Module: "re"},
	{Alias: "collections", Module: "collections"},
	{Alias: "itertools", Module: "itertools"},
	{Alias: "functools", Module: "functools"},
	{Alias: "operator", Module: "operator"},
	{Alias: "decimal", Module: "decimal"},
	{Alias: "fractions", Module: "fractions"},
}

// plottingBindings are the names under which the plotting module is seeded.
var plottingBindings = []ModuleBinding{
	{Alias: "matplotlib", Module: "matplotlib"},
	{Alias: "plt", Module: "matplotlib.pyplot"},
}

// Namespace is the explicit enumeration of every name guest code can reach.
// A Namespace is built fresh for each request, exclusively owned by it, and
// discarded after result extraction; instances are never pooled or shared.
type Namespace struct {
	builtins []string
	modules  []ModuleBinding
	plotting []ModuleBinding
}

// NewNamespace builds a fresh guest namespace from the allowlist tables.
// Each call returns an independent copy so one request can never observe
// another's view.
func NewNamespace() *Namespace {
	ns := &Namespace{
		builtins: make([]string, len(guestBuiltins)),
		modules:  make([]ModuleBinding, len(guestModules)),
		plotting: make([]ModuleBinding, len(plottingBindings)),
	}
	copy(ns.builtins, guestBuiltins)
	copy(ns.modules, guestModules)
	copy(ns.plotting, plottingBindings)
	return ns
}

// Builtins returns the enumerated builtin names.
func (ns *Namespace) Builtins() []string {
	return ns.builtins
}

// Modules returns the non-plotting module bindings.
func (ns *Namespace) Modules() []ModuleBinding {
	return ns.modules
}

// PlottingBindings returns the names under which the plotting module is seeded.
func (ns *Namespace) PlottingBindings() []ModuleBinding {
	return ns.plotting
}

// AllowedImports returns the sorted set of canonical module names an in-guest
// import statement may resolve. Submodule imports of a listed module are
// permitted; everything else is refused.
func (ns *Namespace) AllowedImports() []string {
	seen := make(map[string]bool)
	for _, b := range ns.modules {
		seen[rootModule(b.Module)] = true
	}
	for _, b := range ns.plotting {
		seen[rootModule(b.Module)] = true
	}
	roots := make([]string, 0, len(seen))
	for root := range seen {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// SeededNames returns every name the builder places into the guest namespace
// before guest code runs. The result extractor skips these when snapshotting
// guest-created bindings.
func (ns *Namespace) SeededNames() []string {
	names := make([]string, 0, len(ns.modules)+len(ns.plotting))
	for _, b := range ns.modules {
		names = append(names, b.Alias)
	}
	for _, b := range ns.plotting {
		names = append(names, b.Alias)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is seeded into the guest namespace, either as a
// builtin or a module binding.
func (ns *Namespace) Has(name string) bool {
	for _, b := range ns.builtins {
		if b == name {
			return true
		}
	}
	for _, m := range ns.modules {
		if m.Alias == name {
			return true
		}
	}
	for _, m := range ns.plotting {
		if m.Alias == name {
			return true
		}
	}
	return false
}

func rootModule(module string) string {
	for i := 0; i < len(module); i++ {
		if module[i] == '.' {
			return module[:i]
		}
	}
	return module
}
