package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"irasm/internal/buildpipeline"
	"irasm/internal/fileformat"
	"irasm/internal/testkit"
)

const walletUnit = `
[module]
address = "0x42"
name = "Wallet"

[[import]]
address = "0x1"
module = "Coin"

[[struct]]
name = "Purse"
fields = [{ name = "coin", type = "Coin.C" }]

[[constant]]
name = "LIMIT"
type = "u64"
value = 500

[[function]]
name = "open"
visibility = "public"
parameters = [{ name = "c", type = "Coin.C" }]
returns = ["Purse"]

  [[function.block]]
  label = "b0"
  code = ["ld_const LIMIT", "br_true done", "call Coin.mint"]

  [[function.block]]
  label = "done"
  code = ["pack Purse", "ret"]
`

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func coinDependency(t *testing.T, dir string) string {
	t.Helper()
	b := testkit.NewModule("0x1", "Coin")
	b.Struct("C", fileformat.Abilities(fileformat.AbilityStore),
		testkit.Field{Name: "value", Type: fileformat.Primitive(fileformat.TokenU64)})
	b.Function(b.Self(), "mint", nil, nil)
	data, err := fileformat.Marshal(b.Build())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(dir, "deps", "Coin.mv")
	writeTestFile(t, path, data)
	return path
}

func TestAssembleAndInspect(t *testing.T) {
	dir := t.TempDir()
	dep := coinDependency(t, dir)
	unitPath := filepath.Join(dir, "units", "wallet.toml")
	writeTestFile(t, unitPath, []byte(walletUnit))
	outDir := filepath.Join(dir, "out")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"assemble", "--ui=off", "--dep", dep, "--out", outDir, unitPath})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("assemble: %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "assembled") {
		t.Fatalf("stdout:\n%s", stdout.String())
	}

	modPath := filepath.Join(outDir, "wallet"+buildpipeline.ModuleExt)
	data, err := os.ReadFile(modPath)
	if err != nil {
		t.Fatalf("module not written: %v", err)
	}
	m, err := fileformat.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	sm, err := loadSourceMap(filepath.Join(outDir, "wallet"+buildpipeline.SourceMapExt))
	if err != nil {
		t.Fatalf("loadSourceMap: %v", err)
	}

	var listing bytes.Buffer
	if err := newLister(&listing, m, sm).list(true); err != nil {
		t.Fatalf("list: %v", err)
	}
	got := listing.String()
	for _, want := range []string{
		"module 0x42::Wallet",
		"use 0x1::Coin",
		"struct Purse { coin: Coin.C }",
		"public fun open(Coin.C): Purse",
		"br_true 3",
		"call Coin.mint",
		"ld_const 500: u64",
		"LIMIT",
		"wallet.toml:",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("listing lacks %q:\n%s", want, got)
		}
	}
}

func TestListerToleratesMissingSourceMap(t *testing.T) {
	b := testkit.NewModule("0x1", "Coin")
	b.Struct("C", 0)
	var out bytes.Buffer
	if err := newLister(&out, b.Build(), nil).list(false); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "struct C {  }") {
		t.Fatalf("listing:\n%s", out.String())
	}
	if err := newLister(&out, &fileformat.CompiledModule{}, nil).list(false); err == nil {
		t.Fatal("module without a self handle listed")
	}
}

func TestReadUIMode(t *testing.T) {
	cases := map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, " on ": uiModeOn, "off": uiModeOff}
	for in, want := range cases {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Fatalf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Fatal("expected error")
	}
	if shouldUseTUI(uiModeAuto, true) || !shouldUseTUI(uiModeOn, true) {
		t.Fatal("shouldUseTUI ignores quiet or forced mode")
	}
}

func TestFormatPathForOutput(t *testing.T) {
	root := filepath.Join("tmp", "batch")
	if got := formatPathForOutput(root, filepath.Join(root, "out", "a.mv")); got != "out/a.mv" {
		t.Fatalf("got %q", got)
	}
	if got := formatPathForOutput(root, filepath.Join("elsewhere", "a.mv")); got != filepath.Join("elsewhere", "a.mv") {
		t.Fatalf("got %q", got)
	}
	if got := formatPathForOutput("", "a.mv"); got != "a.mv" {
		t.Fatalf("got %q", got)
	}
}

func TestPrintStageTimings(t *testing.T) {
	var timings buildpipeline.Timings
	timings.Set(buildpipeline.StageLoad, 2*time.Millisecond)
	timings.Add(buildpipeline.StageAssemble, time.Millisecond)
	timings.Add(buildpipeline.StageAssemble, time.Millisecond)
	var out bytes.Buffer
	if err := printStageTimings(&out, timings); err != nil {
		t.Fatal(err)
	}
	if out.String() != "loaded 2.0 ms\nassembled 2.0 ms\n" {
		t.Fatalf("timings:\n%s", out.String())
	}
}

func TestRenderVersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := renderVersionJSON(&out); err != nil {
		t.Fatal(err)
	}
	var payload versionPayload
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("json: %v", err)
	}
	if payload.Tool != "irasm" || payload.BytecodeVersion != fileformat.VersionMax {
		t.Fatalf("payload = %+v", payload)
	}
}
