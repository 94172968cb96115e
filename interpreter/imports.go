package interpreter

import "strings"

// ScanReferencedModules performs a literal line scan of the submitted source
// for import-style statements. The result is advisory observability only: it
// can both over-report (strings that look like imports) and under-report
// (conditional imports), and nothing in the pipeline makes security or
// correctness decisions from it.
func ScanReferencedModules(source string) []string {
	var statements []string
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
