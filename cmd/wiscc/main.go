// Command wiscc compiles source files into the target VM's module
// binary format.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mx-scissortail/WebBS"
)

// rootCmd is grounded on the cue-lang-cue example's cobra wiring
// (cmd/cue/cmd/*.go: one cobra.Command constructor per subcommand,
// assembled under a root) — generalized here from CUE's many config
// subcommands down to this compiler's three pipeline-stage commands.
// The teacher itself (go/cmd/langlang/main.go) only ever used the
// stdlib flag package for its single binary; cobra is adopted from the
// rest of the pack instead of duplicating that simpler shape.
func main() {
	root := &cobra.Command{
		Use:   "wiscc",
		Short: "compiles the stack-machine expression language",
	}
	root.AddCommand(newCompileCmd())
	root.AddCommand(newParseCmd())
	root.AddCommand(newDumpCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCompileCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "compile <source-file>",
		Short: "compiles a source file to a module binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			module, err := webbs.Compile(string(source), nil)
			if err != nil {
				return reportCompileError(err)
			}
			if outputPath == "" {
				_, err = os.Stdout.Write(module)
				return err
			}
			return os.WriteFile(outputPath, module, 0644)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "path to write the module binary (default: stdout)")
	return cmd
}

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <source-file>",
		Short: "parses a source file and prints its AST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			root, err := webbs.Parse(string(source))
			if err != nil {
				return reportCompileError(err)
			}
			fmt.Print(webbs.PrintAST(root))
			return nil
		},
	}
	return cmd
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <source-file>",
		Short: "runs the full pipeline and prints the resolved/validated AST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			root, err := webbs.Parse(string(source))
			if err != nil {
				return reportCompileError(err)
			}
			if err := webbs.Resolve(root, root.Scope); err != nil {
				return reportCompileError(err)
			}
			if err := webbs.Validate(root, root.Scope); err != nil {
				return reportCompileError(err)
			}
			fmt.Print(webbs.PrintAST(root))
			asm, err := webbs.DisassembleModule(root, root.Scope)
			if err != nil {
				return reportCompileError(err)
			}
			fmt.Print(asm)
			return nil
		},
	}
	return cmd
}

func reportCompileError(err error) error {
	if ce, ok := err.(*webbs.CompileError); ok {
		if ce.Span != (webbs.Span{}) {
			return fmt.Errorf("%s: %s (%s)", ce.Kind, ce.Msg, ce.Span)
		}
		return fmt.Errorf("%s: %s", ce.Kind, ce.Msg)
	}
	return err
}
