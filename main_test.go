package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOutputPath(t *testing.T) {
	if got := outputPath("poisson.slt", ""); got != "poisson.c" {
		t.Fatalf("default output wrong. expected=%q, got=%q", "poisson.c", got)
	}
	if got := outputPath(filepath.Join("scripts", "stokes.slt"), ""); got != "stokes.c" {
		t.Fatalf("nested script output wrong. expected=%q, got=%q", "stokes.c", got)
	}
	if got := outputPath("poisson.slt", "out/kernel.c"); got != "out/kernel.c" {
		t.Fatalf("explicit output ignored. expected=%q, got=%q", "out/kernel.c", got)
	}
}

func TestParseScriptFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.slt")
	src := "space V = fe(2)\ntensor A : matrix(V, V)\nout = A + A\n"
	if err := os.WriteFile(good, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	script, ok := parseScript(good)
	if !ok {
		t.Fatalf("expected %s to parse", good)
	}
	if script.Root == nil {
		t.Fatalf("parsed script has no root binding")
	}

	bad := filepath.Join(dir, "bad.slt")
	if err := os.WriteFile(bad, []byte("out = Z\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := parseScript(bad); ok {
		t.Fatalf("expected %s to fail", bad)
	}

	if _, ok := parseScript(filepath.Join(dir, "missing.slt")); ok {
		t.Fatal("expected missing file to fail")
	}
}

func TestLoadParameters(t *testing.T) {
	params, err := loadParameters("")
	if err != nil || params != nil {
		t.Fatalf("empty path should load nothing, got %v, %v", params, err)
	}

	dir := t.TempDir()
	file := filepath.Join(dir, "params.hcl")
	src := "parameters {\n  mode = \"aggressive\"\n}\n"
	if err := os.WriteFile(file, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	params, err = loadParameters(file)
	if err != nil {
		t.Fatal(err)
	}
	if params.Mode != "aggressive" {
		t.Fatalf("mode wrong. expected=%q, got=%q", "aggressive", params.Mode)
	}

	if _, err := loadParameters(filepath.Join(dir, "absent.hcl")); err == nil {
		t.Fatal("expected missing parameters file to fail")
	}
}
