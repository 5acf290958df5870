package gdpull_test

import (
	"testing"

	"github.com/mashiike/gdpull"
	"github.com/mashiike/gdpull/pkg/pullevent"
	"github.com/stretchr/testify/require"
)

func TestCELEnv(t *testing.T) {
	env, err := gdpull.NewCELEnv()
	require.NoError(t, err)

	cases := []struct {
		name     string
		expr     string
		input    *gdpull.RuleInput
		expected bool
	}{
		{
			name:     "simple true",
			expr:     "true",
			input:    &gdpull.RuleInput{File: &pullevent.File{Name: "test"}},
			expected: true,
		},
		{
			name:     "simple false",
			expr:     "false",
			input:    &gdpull.RuleInput{File: &pullevent.File{Name: "test"}},
			expected: false,
		},
		{
			name: "check file name",
			expr: `file.name.endsWith(".tmp")`,
			input: &gdpull.RuleInput{
				File: &pullevent.File{Name: "cache.tmp"},
			},
			expected: true,
		},
		{
			name: "check native mime type",
			expr: `file.mimeType.startsWith("application/vnd.google-apps.")`,
			input: &gdpull.RuleInput{
				File: &pullevent.File{MimeType: "application/vnd.google-apps.spreadsheet"},
			},
			expected: true,
		},
		{
			name: "check size",
			expr: `file.size > 1048576`,
			input: &gdpull.RuleInput{
				File: &pullevent.File{Name: "small.bin", Size: 1024},
			},
			expected: false,
		},
		{
			name: "check folder name",
			expr: `folder.name == "Reports" && file.name.contains("draft")`,
			input: &gdpull.RuleInput{
				File:   &pullevent.File{Name: "q3-draft.pdf"},
				Folder: &pullevent.Folder{ID: "folder1", Name: "Reports"},
			},
			expected: true,
		},
		{
			name:     "missing folder is empty",
			expr:     `folder.id == ""`,
			input:    &gdpull.RuleInput{File: &pullevent.File{Name: "a.txt"}},
			expected: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			compiled, err := env.Compile(c.expr)
			require.NoError(t, err, "compile")
			result, err := compiled.Eval(c.input)
			require.NoError(t, err, "eval")
			require.Equal(t, c.expected, result)
		})
	}
}

func TestCELEnv_CompileError(t *testing.T) {
	env, err := gdpull.NewCELEnv()
	require.NoError(t, err)

	_, err = env.Compile("invalid syntax !!!")
	require.Error(t, err)

	_, err = env.Compile(`"string"`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must return bool")

	_, err = env.Compile(`change.fileId == ""`)
	require.Error(t, err)
}

func TestCELEnv_EnvFunction(t *testing.T) {
	t.Setenv("TEST_SKIP_PREFIX", "tmp-")

	env, err := gdpull.NewCELEnv()
	require.NoError(t, err)

	compiled, err := env.Compile(`file.name.startsWith(env("TEST_SKIP_PREFIX"))`)
	require.NoError(t, err)

	result, err := compiled.Eval(&gdpull.RuleInput{File: &pullevent.File{Name: "tmp-scratch.txt"}})
	require.NoError(t, err)
	require.True(t, result)

	result, err = compiled.Eval(&gdpull.RuleInput{File: &pullevent.File{Name: "report.pdf"}})
	require.NoError(t, err)
	require.False(t, result)
}

func TestExprOrBool(t *testing.T) {
	env, err := gdpull.NewCELEnv()
	require.NoError(t, err)

	cases := []struct {
		name     string
		yaml     string
		input    *gdpull.RuleInput
		expected bool
		isExpr   bool
	}{
		{
			name:     "literal true",
			yaml:     `true`,
			input:    &gdpull.RuleInput{},
			expected: true,
			isExpr:   true, // "true" is a valid CEL expression
		},
		{
			name:     "literal false",
			yaml:     `false`,
			input:    &gdpull.RuleInput{},
			expected: false,
			isExpr:   true,
		},
		{
			name: "expression",
			yaml: `file.mimeType == "application/vnd.google-apps.form"`,
			input: &gdpull.RuleInput{
				File: &pullevent.File{MimeType: "application/vnd.google-apps.form"},
			},
			expected: true,
			isExpr:   true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var ev gdpull.ExprOrBool
			err := ev.UnmarshalYAML([]byte(c.yaml))
			require.NoError(t, err, "unmarshal")

			err = ev.Bind(env)
			require.NoError(t, err, "bind")
			require.Equal(t, c.isExpr, ev.IsExpr())

			result, err := ev.Eval(c.input)
			require.NoError(t, err, "eval")
			require.Equal(t, c.expected, result)
		})
	}
}
