package interpreter

import (
	"fmt"
	"strings"
)

const (
	codeEchoLimit    = 200
	summaryVariables = 5
	summaryImports   = 5
	slowThresholdSec = 10.0
	fastThresholdSec = 0.1
)

// Formatter renders an ExecutionOutcome into a human-readable summary for
// direct inclusion in an agent response. It never panics: any internal
// failure degrades to a minimal fixed message.
type Formatter struct{}

// NewFormatter creates a Formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Summary renders the outcome. The structured counterpart is the outcome
// value itself, which marshals directly to JSON.
func (f *Formatter) Summary(outcome *ExecutionOutcome, source string) (summary string) {
	defer func() {
		if r := recover(); r != nil {
			summary = f.fallback(outcome)
		}
	}()
	return f.render(outcome, source)
}

func (f *Formatter) render(outcome *ExecutionOutcome, source string) string {
	var b strings.Builder

	indicator := "✅"
	if !outcome.Success {
		indicator = "❌"
	}

	echo := source
	ellipsis := ""
	if len(echo) > codeEchoLimit {
		echo = echo[:codeEchoLimit]
		ellipsis = "..."
	}

	fmt.Fprintf(&b, "%s **Python Code Execution Results**\n\n", indicator)
	fmt.Fprintf(&b, "📝 **Code Summary:**\n```python\n%s%s\n```\n\n", echo, ellipsis)
	fmt.Fprintf(&b, "⏱️ **Execution Time:** %.3f seconds\n", outcome.ElapsedSeconds)

	output := strings.TrimSpace(outcome.Output)
	if output != "" {
		fmt.Fprintf(&b, "\n📤 **Output:**\n```\n%s\n```", output)
		if outcome.OutputTruncated {
			b.WriteString("\n(output truncated)")
		}
	} else {
		b.WriteString("\n📤 **Output:** No output produced")
	}

	if outcome.Error != nil {
		fmt.Fprintf(&b, "\n🚨 **Error (%s):**\n```\n%s\n```", outcome.Error.Class, outcome.Error.Message)
	}

	if len(outcome.Variables) > 0 {
		fmt.Fprintf(&b, "\n📊 **Variables Created:** %d", len(outcome.Variables))
		shown := outcome.Variables
		if len(shown) > summaryVariables {
			shown = shown[:summaryVariables]
		}
		for _, v := range shown {
			value := v.Value
			if len(value) > 100 {
				value = value[:100] + "..."
			}
			fmt.Fprintf(&b, "\n  • `%s` (%s): %s", v.Name, v.TypeTag, value)
		}
		if extra := len(outcome.Variables) - summaryVariables; extra > 0 {
			fmt.Fprintf(&b, "\n  • ... and %d more variables", extra)
		}
	}

	if len(outcome.Artifacts) > 0 {
		fmt.Fprintf(&b, "\n🎨 **Visualizations:** %d generated", len(outcome.Artifacts))
		for _, a := range outcome.Artifacts {
			format := strings.ToUpper(strings.TrimPrefix(a.Encoding, "base64/"))
			fmt.Fprintf(&b, "\n  • %s (%s, %.1fKB)", a.Label, format, float64(a.SizeBytes)/1024)
		}
	}

	if len(outcome.ReferencedModules) > 0 {
		b.WriteString("\n📚 **Libraries Used:**")
		shown := outcome.ReferencedModules
		if len(shown) > summaryImports {
			shown = shown[:summaryImports]
		}
		for _, imp := range shown {
			fmt.Fprintf(&b, "\n  • `%s`", imp)
		}
		if extra := len(outcome.ReferencedModules) - summaryImports; extra > 0 {
			fmt.Fprintf(&b, "\n  • ... and %d more imports", extra)
		}
	}

	if outcome.ElapsedSeconds > slowThresholdSec {
		fmt.Fprintf(&b, "\n⚠️ **Performance Note:** Execution took %.1fs - consider optimizing for faster results", outcome.ElapsedSeconds)
	} else if outcome.ElapsedSeconds < fastThresholdSec {
		fmt.Fprintf(&b, "\n⚡ **Performance:** Very fast execution (%.1fms)", outcome.ElapsedSeconds*1000)
	}

	if outcome.Degraded {
		b.WriteString("\n⚠️ **Note:** Some resource ceilings could not be enforced on this host")
	}

	if outcome.Success {
		b.WriteString("\n\n✨ **Summary:** Code executed successfully")
		if n := len(outcome.Artifacts); n > 0 {
			fmt.Fprintf(&b, " with %d visualization(s)", n)
		}
		if n := len(outcome.Variables); n > 0 {
			fmt.Fprintf(&b, " and %d variable(s) created", n)
		}
	} else {
		b.WriteString("\n\n💡 **Tip:** Check the error message above and verify your code syntax and logic")
	}

	return b.String()
}

// fallback is the last line of defense: a minimal fixed rendering that still
// carries the success indicator and timing.
func (f *Formatter) fallback(outcome *ExecutionOutcome) string {
	indicator := "✅"
	elapsed := 0.0
	if outcome != nil {
		if !outcome.Success {
			indicator = "❌"
		}
		if outcome.ElapsedSeconds > 0 {
			elapsed = outcome.ElapsedSeconds
		}
	}
	return fmt.Sprintf("%s Python execution finished in %.3f seconds (summary unavailable: internal formatting error)", indicator, elapsed)
}
