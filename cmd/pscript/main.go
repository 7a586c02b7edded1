// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Command pscript is the embedding engine's example shell: the CLI
// surface specified for cross-reference only by spec.md §6/§11 ("the
// njs shell's interactive surface"), implemented here as the external
// collaborator it was always meant to be.
//
// Usage:
//
//	pscript [options] [script]
//
// Flags mirror spec.md §6 exactly: -c (inline source), -t (script or
// module), -p (module search path, colon-separated), -j (stack size),
// -e (failure exit code), -s (sandbox), -u (drop unsafe), -v (version),
// -q (no prompt), -r (ignore unhandled rejections), -a (dump AST,
// documented no-op — see below), -d (disassemble).
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/naoina/toml"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/host"
	"golang.org/x/time/rate"
)

const version = "0.1.0"

// rcConfig is the shape of an optional .pscriptrc file, loaded with
// naoina/toml the way the teacher's own node config does (§9 ambient
// stack: "optionally loads a .pscriptrc options file").
type rcConfig struct {
	Sandbox      bool   `toml:"sandbox"`
	Unsafe       bool   `toml:"unsafe"`
	ModulePath   string `toml:"module_path"`
	InstructionBudget int64 `toml:"instruction_budget"`
}

func main() {
	app := cli.NewApp()
	app.Name = "pscript"
	app.Usage = "run or explore a pscript program"
	app.Version = version
	app.ArgsUsage = "[script]"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "c", Usage: "inline source to execute instead of a script file"},
		cli.StringFlag{Name: "t", Value: "script", Usage: "source type: script|module"},
		cli.StringFlag{Name: "p", Usage: "module search path, colon-separated (also NJS_PATH); accepted but not used for module resolution"},
		cli.IntFlag{Name: "j", Usage: "max stack size in bytes"},
		cli.IntFlag{Name: "e", Value: 1, Usage: "process exit code on an uncaught failure (also NJS_EXIT_CODE)"},
		cli.BoolFlag{Name: "s", Usage: "sandbox: disable the module loader and fs addon"},
		cli.BoolFlag{Name: "u", Usage: "drop unsafe (eval/Function)"},
		cli.BoolFlag{Name: "q", Usage: "no REPL prompt/banner"},
		cli.BoolFlag{Name: "r", Usage: "ignore unhandled promise rejections"},
		cli.BoolFlag{Name: "a", Usage: "dump parsed AST (no-op: no front end is bundled, see §1/§11)"},
		cli.BoolFlag{Name: "d", Usage: "disassemble compiled bytecode before running"},
		cli.StringFlag{Name: "config", Usage: "load options from a .pscriptrc TOML file"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("pscript: %v", err))
		os.Exit(exitCode())
	}
}

func exitCode() int {
	if s := os.Getenv("NJS_EXIT_CODE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 1
}

func run(ctx *cli.Context) error {
	// Options.Frontend is intentionally left nil: lexing/parsing is an
	// external collaborator this engine does not ship (§1). vm.Compile
	// surfaces that as a clear error rather than this command
	// fabricating a parser. An embedder wires its own front end by
	// constructing host.Options directly instead of using this binary.
	opts := host.Options{
		Sandbox: ctx.Bool("s"),
		Unsafe:  !ctx.Bool("u"),
		Quiet:   ctx.Bool("q"),
		Disassemble: ctx.Bool("d"),
		Module:  ctx.String("t") == "module",
		Argv:    []string(ctx.Args()),
	}
	if path := firstNonEmpty(ctx.String("p"), os.Getenv("NJS_PATH")); path != "" && !opts.Sandbox {
		fmt.Fprintln(os.Stderr, "pscript: -p/NJS_PATH accepted but unused — no module loader is wired without a bundled front end (§1)")
	}
	if budget := ctx.Int("j"); budget > 0 {
		opts.MaxStackSize = uint64(budget)
	}

	if rcPath := ctx.String("config"); rcPath != "" {
		if err := applyRC(rcPath, &opts); err != nil {
			return err
		}
	}

	vm, err := host.Create(opts)
	if err != nil {
		return err
	}

	if ctx.Bool("r") {
		vm.SetRejectionTracker(func(p *heap.Promise, handled bool) {})
	}

	if ctx.Bool("a") {
		fmt.Fprintln(os.Stderr, "pscript: -a (AST dump) is a documented no-op — no front end is bundled with this engine (§1)")
	}

	if src := ctx.String("c"); src != "" {
		return execSource(vm, src, "<command-line>", ctx.Int("e"))
	}
	if ctx.NArg() > 0 {
		path := ctx.Args().First()
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return execSource(vm, string(data), path, ctx.Int("e"))
	}

	return repl(vm, ctx.Bool("q"))
}

var tomlSettings = toml.Config{}

func applyRC(path string, opts *host.Options) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var rc rcConfig
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&rc); err != nil {
		return err
	}
	opts.Sandbox = opts.Sandbox || rc.Sandbox
	opts.Unsafe = opts.Unsafe || rc.Unsafe
	if rc.InstructionBudget > 0 {
		opts.InstructionBudget = rate.Limit(rc.InstructionBudget)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func execSource(vm *host.VM, src, name string, exitOnErr int) error {
	code, err := vm.Compile(src, name)
	if err != nil {
		return err
	}
	if code.Disassembly != "" {
		fmt.Fprintln(os.Stderr, code.Disassembly)
	}
	_, err = vm.Start(code)
	if err != nil {
		os.Exit(exitOnErr)
	}
	return nil
}

// repl is the colorized interactive surface: prompt/error coloring via
// fatih/color, raw-mode line editing via peterh/liner, and
// TTY-appropriate ANSI handling via mattn/go-isatty + go-colorable —
// all teacher dependencies wired here per §10's domain-stack table.
func repl(vm *host.VM, quiet bool) error {
	out := colorable.NewColorableStdout()
	isTTY := isatty.IsTerminal(os.Stdout.Fd())

	if !quiet {
		fmt.Fprintln(out, color.CyanString("pscript %s", version))
	}

	if !isTTY {
		return replPlain(vm, os.Stdin, out)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		code, err := vm.Compile(input, "<repl>")
		if err != nil {
			fmt.Fprintln(out, color.RedString("%v", err))
			continue
		}
		v, err := vm.Start(code)
		if err != nil {
			fmt.Fprintln(out, color.RedString("%v", err))
			continue
		}
		fmt.Fprintln(out, color.GreenString("%v", v))
	}
}

func replPlain(vm *host.VM, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		code, err := vm.Compile(line, "<repl>")
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		v, err := vm.Start(code)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		fmt.Fprintln(out, v)
	}
	return scanner.Err()
}
