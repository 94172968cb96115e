package interpreter

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs/pycell/sandbox"
)

func TestExtractVariables(t *testing.T) {
	e := NewExtractor(testConfig())

	t.Run("CarriesReportSnapshots", func(t *testing.T) {
		res := sandbox.RunResult{
			Report: &sandbox.Report{
				Variables: []sandbox.ReportVariable{
					{Name: "x", Type: "int", Value: "42"},
					{Name: "df", Type: "DataFrame", Value: "   a  b\n0  1  2", Truncated: true},
				},
			},
		}

		vars, _, _ := e.Extract(res, "")
		require.Len(t, vars, 2)
		assert.Equal(t, "x", vars[0].Name)
		assert.Equal(t, "int", vars[0].TypeTag)
		assert.Equal(t, "42", vars[0].Value)
		assert.False(t, vars[0].Truncated)
		assert.True(t, vars[1].Truncated)
	})

	t.Run("ReappliesBudgetToOversizedValue", func(t *testing.T) {
		res := sandbox.RunResult{
			Report: &sandbox.Report{
				Variables: []sandbox.ReportVariable{
					{Name: "huge", Type: "str", Value: strings.Repeat("a", 5000)},
				},
			},
		}

		vars, _, _ := e.Extract(res, "")
		require.Len(t, vars, 1)
		assert.Len(t, vars[0].Value, 503)
		assert.True(t, strings.HasSuffix(vars[0].Value, "..."))
		assert.True(t, vars[0].Truncated)
	})

	t.Run("NoReport", func(t *testing.T) {
		vars, _, _ := e.Extract(sandbox.RunResult{}, "")
		assert.Nil(t, vars)
	})
}

func TestExtractArtifacts(t *testing.T) {
	e := NewExtractor(testConfig())

	t.Run("EncodesFigures", func(t *testing.T) {
		res := sandbox.RunResult{
			Artifacts: []sandbox.Artifact{
				{Label: "Figure 1", Format: "png", Data: []byte{0x89, 0x50, 0x4e, 0x47}},
			},
		}

		_, artifacts, _ := e.Extract(res, "")
		require.Len(t, artifacts, 1)
		assert.Equal(t, "figure", artifacts[0].Kind)
		assert.Equal(t, "base64/png", artifacts[0].Encoding)
		assert.Equal(t, "Figure 1", artifacts[0].Label)
		assert.Equal(t, 4, artifacts[0].SizeBytes)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x89, 0x50, 0x4e, 0x47}), artifacts[0].Data)
	})

	t.Run("DropsEmptyAndOversized", func(t *testing.T) {
		res := sandbox.RunResult{
			Artifacts: []sandbox.Artifact{
				{Label: "empty", Format: "png", Data: nil},
				{Label: "huge", Format: "png", Data: make([]byte, 2048*1024+1)},
				{Label: "ok", Format: "png", Data: []byte("fine")},
			},
		}

		_, artifacts, _ := e.Extract(res, "")
		require.Len(t, artifacts, 1)
		assert.Equal(t, "ok", artifacts[0].Label)
	})
}

func TestExtractModules(t *testing.T) {
	e := NewExtractor(testConfig())

	_, _, modules := e.Extract(sandbox.RunResult{}, "import numpy as np\nx = np.zeros(3)")
	assert.Equal(t, []string{"import numpy as np"}, modules)
}
