package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"prompt", "experiment", "feedback", "template", "listen"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"name=Ada", "count=3", "flag=true", `plans=["free","pro"]`, "raw=hello world"})
	if err != nil {
		t.Fatalf("parseVars: %v", err)
	}

	want := map[string]any{
		"name":  "Ada",
		"count": float64(3),
		"flag":  true,
		"plans": []any{"free", "pro"},
		"raw":   "hello world",
	}
	if !reflect.DeepEqual(vars, want) {
		t.Fatalf("parseVars = %#v, want %#v", vars, want)
	}

	if _, err := parseVars([]string{"no-equals"}); err == nil {
		t.Fatal("expected error for pair without =")
	}
}

func TestTemplateInput(t *testing.T) {
	literal, err := templateInput("Hello {{name}}")
	if err != nil || literal != "Hello {{name}}" {
		t.Fatalf("literal input: %q, %v", literal, err)
	}

	path := filepath.Join(t.TempDir(), "greeting.txt")
	if err := os.WriteFile(path, []byte("Hi {{name}}"), 0o600); err != nil {
		t.Fatal(err)
	}
	fromFile, err := templateInput(path)
	if err != nil || fromFile != "Hi {{name}}" {
		t.Fatalf("file input: %q, %v", fromFile, err)
	}
}
