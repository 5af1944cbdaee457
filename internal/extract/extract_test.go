package extract

import (
	"errors"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "single block",
			raw:  "```python\nprint('hi')\n```",
			want: "print('hi')",
		},
		{
			name: "surrounding prose",
			raw:  "Here you go:\n\n```python\n\n  x = 1\nprint(x)  \n\n```\nEnjoy!",
			want: "x = 1\nprint(x)",
		},
		{
			name: "first of several blocks",
			raw:  "```python\nprint(1)\n```\nor\n```python\nprint(2)\n```",
			want: "print(1)",
		},
		{
			name: "other language before python",
			raw:  "```bash\npip install requests\n```\n```python\nimport requests\n```",
			want: "import requests",
		},
		{
			name: "uppercase tag",
			raw:  "```Python\nprint('x')\n```",
			want: "print('x')",
		},
		{
			name: "inline fence",
			raw:  "```python print('inline')```",
			want: "print('inline')",
		},
		{
			name: "quotes and control characters kept",
			raw:  "```python\nprint(\"a'b\\n\\t\")\n```",
			want: "print(\"a'b\\n\\t\")",
		},
		{
			name: "empty block skipped",
			raw:  "```python\n   \n```\n```python\nprint(3)\n```",
			want: "print(3)",
		},
		{
			name:    "prose only",
			raw:     "I cannot help with that.",
			wantErr: ErrNoCodeBlockFound,
		},
		{
			name:    "untagged block",
			raw:     "```\nprint('hi')\n```",
			wantErr: ErrNoCodeBlockFound,
		},
		{
			name:    "shell block only",
			raw:     "```sh\necho hi\n```",
			wantErr: ErrNoCodeBlockFound,
		},
		{
			name:    "longer tag is a different language",
			raw:     "```pythonic\nprint('hi')\n```",
			wantErr: ErrNoCodeBlockFound,
		},
		{
			name:    "unterminated block",
			raw:     "```python\nprint('hi')",
			wantErr: ErrNoCodeBlockFound,
		},
		{
			name:    "empty input",
			raw:     "",
			wantErr: ErrNoCodeBlockFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
				}
				if got != "" {
					t.Errorf("Extract() = %q, want empty", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewCustomLanguage(t *testing.T) {
	e := New("go")
	if e.Language() != "go" {
		t.Errorf("Language() = %q, want %q", e.Language(), "go")
	}

	got, err := e.Extract("```python\nprint(1)\n```\n```go\nfmt.Println(1)\n```")
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}
	if got != "fmt.Println(1)" {
		t.Errorf("Extract() = %q, want %q", got, "fmt.Println(1)")
	}
}

func TestNewEmptyLanguageDefaults(t *testing.T) {
	if got := New("  ").Language(); got != DefaultLanguage {
		t.Errorf("Language() = %q, want %q", got, DefaultLanguage)
	}
}
