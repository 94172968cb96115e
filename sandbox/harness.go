package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// Filenames used inside each run's working directory.
const (
	HarnessFilename = "main.py"
	ReportFilename  = "report.json"
)

// HarnessParams carries the per-run ceilings rendered into the bootstrap
// program.
type HarnessParams struct {
	CPUSeconds     int
	MemoryBytes    int64
	VariableBudget int
	MaxFigures     int
	MaxFigureBytes int
}

// RenderHarness compiles a guest namespace and the guest source into the
// bootstrap program executed inside the sandbox. The bootstrap applies
// resource ceilings, constructs the restricted globals from the namespace
// enumeration, runs the guest source under them, snapshots guest-created
// variables, saves rendered figures, clears the figure registry, and writes
// a JSON report next to itself. The guest source is embedded as an encoded
// string literal, never spliced into executable position.
func RenderHarness(ns *Namespace, source string, p HarnessParams) (string, error) {
	encoded, err := json.Marshal(source)
	if err != nil {
		return "", fmt.Errorf("failed to encode guest source: %w", err)
	}

	data := harnessData{
		Source:         string(encoded),
		Builtins:       ns.Builtins(),
		Modules:        ns.Modules(),
		AllowedImports: ns.AllowedImports(),
		SkipNames:      ns.SeededNames(),
		Params:         p,
		ReportFile:     ReportFilename,
	}

	var buf bytes.Buffer
	if err := harnessTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render harness: %w", err)
	}
	return buf.String(), nil
}

type harnessData struct {
	Source         string
	Builtins       []string
	Modules        []ModuleBinding
	AllowedImports []string
	SkipNames      []string
	Params         HarnessParams
	ReportFile     string
}

var harnessTemplate = template.Must(template.New("harness").Parse(harnessSource))

const harnessSource = `import builtins as _builtins
import importlib as _importlib
import json as _json
import os as _os
import traceback as _traceback

_report = {
    "ok": True,
    "error": None,
    "variables": [],
    "figures": [],
    "enforcement": {"cpu_limit": False, "memory_limit": False},
}

try:
    import resource as _resource
    _resource.setrlimit(_resource.RLIMIT_CPU, ({{.Params.CPUSeconds}}, {{.Params.CPUSeconds}}))
    _report["enforcement"]["cpu_limit"] = True
except Exception:
    pass
try:
    _resource.setrlimit(_resource.RLIMIT_AS, ({{.Params.MemoryBytes}}, {{.Params.MemoryBytes}}))
    _report["enforcement"]["memory_limit"] = True
except Exception:
    pass

_safe_builtins = {}
for _name in [{{range $i, $b := .Builtins}}{{if $i}}, {{end}}{{printf "%q" $b}}{{end}}]:
    if hasattr(_builtins, _name):
        _safe_builtins[_name] = getattr(_builtins, _name)

_allowed_imports = {{"{"}}{{range $i, $m := .AllowedImports}}{{if $i}}, {{end}}{{printf "%q" $m}}{{end}}{{"}"}}

def _safe_import(name, globals=None, locals=None, fromlist=(), level=0):
    if name.split(".")[0] in _allowed_imports:
        return _builtins.__import__(name, globals, locals, fromlist, level)
    raise ImportError("import of %r is not allowed" % name)

_safe_builtins["__import__"] = _safe_import

_ns = {"__builtins__": _safe_builtins, "__name__": "__main__", "__doc__": None}

for _alias, _module in [{{range $i, $m := .Modules}}{{if $i}}, {{end}}({{printf "%q" $m.Alias}}, {{printf "%q" $m.Module}}){{end}}]:
    try:
        _ns[_alias] = _importlib.import_module(_module)
    except ImportError:
        pass

_plt = None
try:
    import matplotlib as _matplotlib
    _matplotlib.use("Agg")
    import matplotlib.pyplot as _pyplot
    _plt = _pyplot
    _ns["matplotlib"] = _matplotlib
    _ns["plt"] = _pyplot
except ImportError:
    pass

_guest_source = {{.Source}}

try:
    _code = compile(_guest_source, "<guest>", "exec")
    exec(_code, _ns)
except MemoryError:
    _report["ok"] = False
    _report["error"] = {
        "kind": "memory",
        "type": "MemoryError",
        "message": "memory limit exceeded",
    }
except BaseException as _exc:
    _report["ok"] = False
    _report["error"] = {
        "kind": "exception",
        "type": type(_exc).__name__,
        "message": str(_exc),
    }
    _traceback.print_exc()

_skip = {{"{"}}{{range $i, $n := .SkipNames}}{{if $i}}, {{end}}{{printf "%q" $n}}{{end}}{{"}"}}

for _name in sorted(_ns.keys()):
    if _name.startswith("_") or _name in _skip:
        continue
    _value = _ns[_name]
    try:
        _text = str(_value)
    except Exception:
        _report["variables"].append({
            "name": _name,
            "type": type(_value).__name__,
            "value": "<unable to display>",
            "truncated": False,
        })
        continue
    _truncated = len(_text) > {{.Params.VariableBudget}}
    if _truncated:
        _text = _text[:{{.Params.VariableBudget}}] + "..."
    _report["variables"].append({
        "name": _name,
        "type": type(_value).__name__,
        "value": _text,
        "truncated": _truncated,
    })

if _plt is not None:
    try:
        _captured = 0
        for _index, _num in enumerate(_plt.get_fignums()):
            if _captured >= {{.Params.MaxFigures}}:
                break
            _fig = _plt.figure(_num)
            if not _fig.get_axes():
                continue
            _path = "figure-%d.png" % (_index + 1)
            _fig.savefig(_path, format="png", dpi=100, bbox_inches="tight")
            _size = _os.path.getsize(_path)
            if _size > {{.Params.MaxFigureBytes}}:
                _os.remove(_path)
                continue
            _report["figures"].append({
                "file": _path,
                "label": "Figure %d" % (_index + 1),
                "size": _size,
            })
            _captured += 1
    except Exception:
        _traceback.print_exc()
    finally:
        _plt.close("all")

with open({{printf "%q" .ReportFile}}, "w") as _fh:
    _json.dump(_report, _fh)
`
