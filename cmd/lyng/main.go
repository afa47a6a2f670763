// Command lyng runs Lyng scripts and hosts the interactive REPL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/sergeych/lyng-go"
)

const (
	historyFile = ".lyng_history"
	promptMain  = "lyng> "
	promptCont  = " ...> "
)

var (
	errColor    = color.New(color.FgRed)
	valueColor  = color.New(color.FgBlue)
	promptColor = color.New(color.FgGreen)
)

func main() {
	app := cli.NewApp()
	app.Name = "lyng"
	app.Usage = "the Lyng scripting language"
	app.Version = lyng.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "manifest, m",
			Usage: "YAML security manifest restricting imports and capabilities",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "run a script file",
			ArgsUsage: "<file.lyng>",
			Action:    cmdRun,
		},
		{
			Name:      "eval",
			Usage:     "evaluate an expression and print the result",
			ArgsUsage: "<expression>",
			Action:    cmdEval,
		},
		{
			Name:   "repl",
			Usage:  "start the interactive REPL",
			Action: cmdRepl,
		},
	}
	// bare `lyng` starts the REPL
	app.Action = cmdRepl

	if err := app.Run(os.Args); err != nil {
		errColor.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// newInterp builds the engine honoring the --manifest flag. Host packages
// are always registered; the policy decides what actually runs.
func newInterp(c *cli.Context) (*lyng.Interp, error) {
	var opts []lyng.Option
	if path := c.GlobalString("manifest"); path != "" {
		policy, err := lyng.LoadManifest(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, lyng.WithPolicy(policy))
	}
	in := lyng.NewInterp(opts...)
	if err := lyng.RegisterHostPackages(in); err != nil {
		return nil, err
	}
	return in, nil
}

func cmdRun(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: lyng run <file.lyng>", 2)
	}
	file := c.Args().First()
	src, err := os.ReadFile(file)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("cannot read %s: %v", file, err), 1)
	}

	in, err := newInterp(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	prog, err := lyng.Compile(file, string(src))
	if err != nil {
		return cli.NewExitError(lyng.WrapErrorWithSource(err, string(src)).Error(), 1)
	}
	if _, err := in.Execute(interruptCtx(), prog, in.NewScope()); err != nil {
		return cli.NewExitError(lyng.WrapErrorWithSource(err, string(src)).Error(), 1)
	}
	return nil
}

func cmdEval(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: lyng eval <expression>", 2)
	}
	src := strings.Join(c.Args(), " ")

	in, err := newInterp(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	v, err := in.Eval(interruptCtx(), "<eval>", src)
	if err != nil {
		return cli.NewExitError(lyng.WrapErrorWithSource(err, src).Error(), 1)
	}
	if v.Kind != lyng.KVoid {
		fmt.Println(v.Inspect())
	}
	return nil
}

// interruptCtx cancels on SIGINT/SIGTERM so scripts stop at their next
// suspension point.
func interruptCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()
	return ctx
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

func cmdRepl(c *cli.Context) error {
	fmt.Printf("Lyng %s REPL\nCtrl+C cancels input, Ctrl+D exits. Type :quit to exit.\n", lyng.Version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	in, err := newInterp(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	sc := in.NewScope() // one persistent scope for the whole session

	var sessionSrc strings.Builder
	ln.SetCompleter(func(line string) []string {
		return complete(sessionSrc.String(), line)
	})

	for {
		code, ok := readByParseProbe(ln, promptColor.Sprint(promptMain), promptColor.Sprint(promptCont))
		if !ok {
			fmt.Println()
			return nil
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			switch strings.ToLower(trimmed) {
			case ":quit", ":q":
				return nil
			default:
				fmt.Println("unknown command. Type :quit to exit.")
			}
			continue
		}

		prog, err := lyng.Compile("<repl>", code)
		if err != nil {
			errColor.Fprintln(os.Stderr, lyng.WrapErrorWithSource(err, code).Error())
			continue
		}
		v, err := in.Execute(interruptCtx(), prog, sc)
		if err != nil {
			errColor.Fprintln(os.Stderr, lyng.WrapErrorWithSource(err, code).Error())
			continue
		}
		if v.Kind != lyng.KVoid {
			valueColor.Println(v.Inspect())
		}
		sessionSrc.WriteString(code + "\n")
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}
}

// readByParseProbe keeps reading continuation lines while the accumulated
// input parses as an incomplete construct.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		_, perr := lyng.Compile("<repl>", src)
		if perr == nil || !lyng.IsIncomplete(perr) {
			return src, true
		}
	}
}

// complete proposes identifiers declared earlier in the session for the
// trailing word of line, using the error-tolerant declaration pass.
func complete(sessionSrc, line string) []string {
	i := len(line)
	for i > 0 && isIdentChar(line[i-1]) {
		i--
	}
	prefix := line[i:]
	if prefix == "" {
		return nil
	}

	sum, err := lyng.CompileLenient("<repl>", sessionSrc)
	if err != nil {
		return nil
	}
	var out []string
	for _, d := range sum.Decls {
		if strings.HasPrefix(d.Name, prefix) {
			out = append(out, line[:i]+d.Name)
		}
	}
	return out
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
