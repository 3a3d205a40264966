// cmd/tensorc/main.go
package main

import (
	"fmt"
	"os"

	"tensorc/cmd/tensorc/commands"
)

const VERSION = "0.1.0"

// Command aliases mapping, same shape as cmd/sentra's commandAliases.
var commandAliases = map[string]string{
	"c": "compile",
	"r": "run",
	"l": "list",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
		args[0] = alias
	}

	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		if len(args) > 1 {
			showCommandHelp(args[1])
		} else {
			showUsage()
		}
		return
	}

	if cmd == "--version" || cmd == "-v" || cmd == "version" {
		showVersion()
		return
	}

	var err error
	switch cmd {
	case "list":
		listSeeds()
		return
	case "run":
		err = commands.RunCommand(args[1:])
	case "compile":
		err = commands.CompileCommand(args[1:])
	case "dump-ir":
		err = commands.DumpIRCommand(args[1:])
	case "dump-uops":
		err = commands.DumpUopsCommand(args[1:])
	default:
		suggestCommand(cmd)
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func listSeeds() {
	fmt.Println("Available seed scenarios:")
	for _, s := range commands.Seeds {
		fmt.Printf("  %-14s %s\n", s.Name, s.Description)
	}
}

func showUsage() {
	fmt.Println("tensorc - a tensor compiler pipeline")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tensorc run <scenario>        Realize a seed scenario end to end (alias: r)")
	fmt.Println("  tensorc compile <scenario>    Render every kernel to C source        (alias: c)")
	fmt.Println("  tensorc dump-ir <scenario>    Print the linearized UOp graph")
	fmt.Println("  tensorc dump-uops <scenario>  Print the linearized UOp graph")
	fmt.Println("  tensorc list                  List available seed scenarios          (alias: l)")
	fmt.Println()
	fmt.Println("Help:")
	fmt.Println("  tensorc help <command>        Show detailed help for a command")
	fmt.Println("  tensorc --version              Show version")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  tensorc run matmul")
	fmt.Println("  tensorc dump-ir loopcollapse")
	fmt.Println("  tensorc compile broadcast")
}

func showVersion() {
	fmt.Printf("tensorc %s\n", VERSION)
}

func showCommandHelp(command string) {
	if alias, ok := commandAliases[command]; ok {
		command = alias
	}
	help := map[string]string{
		"run": `tensorc run - realize a seed scenario

USAGE:
  tensorc run <scenario>
  tensorc r <scenario>

DESCRIPTION:
  Schedules, linearizes, rewrites, renders and executes every kernel a
  seed scenario needs, then prints its flat result.`,

		"compile": `tensorc compile - render kernels without executing them

USAGE:
  tensorc compile <scenario>
  tensorc c <scenario>

DESCRIPTION:
  Schedules and linearizes a seed scenario, then prints the rendered C
  source for each kernel it was cut into.`,

		"dump-ir": `tensorc dump-ir - print the linearized UOp graph

USAGE:
  tensorc dump-ir <scenario>

DESCRIPTION:
  Prints every UOp in each kernel's linearized, rewritten graph, one
  kernel at a time.`,

		"dump-uops": `tensorc dump-uops - print the linearized UOp graph

USAGE:
  tensorc dump-uops <scenario>

DESCRIPTION:
  Same output as dump-ir.`,

		"list": `tensorc list - list available seed scenarios

USAGE:
  tensorc list
  tensorc l`,
	}
	if text, ok := help[command]; ok {
		fmt.Println(text)
		return
	}
	fmt.Printf("No detailed help available for %q\n", command)
	fmt.Println("Run 'tensorc help' to see all available commands")
}

func suggestCommand(cmd string) {
	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
	fmt.Fprintf(os.Stderr, "Run 'tensorc help' to see all available commands\n")
	os.Exit(1)
}
