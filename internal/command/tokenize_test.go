package command

import (
	"reflect"
	"testing"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"-la", []string{"-la"}},
		{"a  b\tc", []string{"a", "b", "c"}},
		{`-m "hello world"`, []string{"-m", "hello world"}},
		{`-m 'it"s'`, []string{"-m", `it"s`}},
		{`-m ""`, []string{"-m", ""}},
		{`pre"fix suf"fix`, []string{"prefix suffix"}},
	}

	for _, tt := range tests {
		got, err := SplitArgs(tt.in)
		if err != nil {
			t.Errorf("SplitArgs(%q) failed: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := SplitArgs(`"open`); err == nil {
		t.Error("Expected error for unterminated quote")
	}
}

func TestAllowList(t *testing.T) {
	want := []string{"cd", "git", "ls", "mkdir", "pwd", "touch"}
	if got := AllowList(); !reflect.DeepEqual(got, want) {
		t.Errorf("AllowList() = %v, want %v", got, want)
	}
	if Allowed("rm") || Allowed("Git") || !Allowed("git") {
		t.Error("Unexpected allow-list membership")
	}
}
