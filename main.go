package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/NicholasBermuda/firedrake/cache"
	"github.com/NicholasBermuda/firedrake/config"
	"github.com/NicholasBermuda/firedrake/lexer"
	"github.com/NicholasBermuda/firedrake/parser"
	"github.com/NicholasBermuda/firedrake/slac"
)

const scriptSuffix = ".slt"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: firedrake-slac [flags] file%s\n", scriptSuffix)
	flag.PrintDefaults()
}

// parseScript reads and parses one expression script. Parse errors are
// printed one per line with their source position.
func parseScript(path string) (*parser.Script, bool) {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", path, err)
		return nil, false
	}
	l := lexer.New(string(source))
	p := parser.New(l)
	script := p.ParseScript()
	if len(p.Errors()) > 0 {
		for _, e := range p.Errors() {
			fmt.Printf("%s: %s\n", path, e)
		}
		return nil, false
	}
	return script, true
}

func loadParameters(path string) (*config.Parameters, error) {
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}

// outputPath derives the generated-source destination: an explicit -o
// wins, otherwise the script name with a .c suffix in the current
// directory.
func outputPath(scriptFile, flagOut string) string {
	if flagOut != "" {
		return flagOut
	}
	return strings.TrimSuffix(filepath.Base(scriptFile), scriptSuffix) + ".c"
}

func main() {
	var (
		paramsFile = flag.String("params", "", "HCL parameters file")
		outFile    = flag.String("o", "", "output file for the generated kernel (default <script>.c, - for stdout)")
		cacheDir   = flag.String("cache", "", "kernel cache directory (default $FIREDRAKE_CACHE or the user cache dir)")
		version    = flag.Bool("version", false, "print version and exit")
	)
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	scriptFile := flag.Arg(0)

	params, err := loadParameters(*paramsFile)
	if err != nil {
		fmt.Printf("Error loading parameters: %v\n", err)
		os.Exit(1)
	}

	script, ok := parseScript(scriptFile)
	if !ok {
		os.Exit(1)
	}

	kernel, err := slac.CompileExpression(script.Root, params)
	if err != nil {
		fmt.Printf("Error compiling %s: %v\n", scriptFile, err)
		os.Exit(1)
	}

	c, err := cache.Open(*cacheDir)
	if err != nil {
		fmt.Printf("Error opening cache: %v\n", err)
		os.Exit(1)
	}
	merged := config.Default().Merge(params)
	cached, err := c.Put(cache.Key(kernel.Source, merged), kernel.Source)
	if err != nil {
		fmt.Printf("Error caching kernel: %v\n", err)
		os.Exit(1)
	}

	if *outFile == "-" {
		fmt.Print(kernel.Source)
		return
	}
	out := outputPath(scriptFile, *outFile)
	if err := os.WriteFile(out, []byte(kernel.Source), 0644); err != nil {
		fmt.Printf("Error writing %s: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Printf("✅ Compiled %s -> %s (cached at %s)\n", scriptFile, out, cached)
}
