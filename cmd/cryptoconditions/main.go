package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/rpc"
)

const version = "v0.3.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// stdin is read by `rpc` when no request argument is given.
var stdin io.Reader = os.Stdin

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "rpc":
		return runRPCCmd(args[2:], stdout, stderr)
	case "methods":
		return runMethodsCmd(stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "cryptoconditions %s\n", version)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(args[1], "-") {
			_, _ = fmt.Fprintf(stderr, "Unknown flag: %s\n", args[1])
			printUsage(stderr)
			return 2
		}
		return runMethodCmd(args[1], args[2:], stdout, stderr)
	}
}

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sCrypto-conditions %s%s\n", ColorBold+ColorBlue, version, ColorReset)
	fmt.Fprintf(w, "%sEncode, decode, sign and verify condition trees.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUsage:%s cryptoconditions <command|method> [arguments]\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "")

	printSection(w, "METHODS")
	printCommand(w, "<method>", "Call a method with a JSON params object: <method> '{\"...\": ...}'")
	printCommand(w, "rpc", "Run a raw {\"method\",\"params\"} request (argument or stdin)")
	printCommand(w, "methods", "List methods and their descriptions")

	printSection(w, "SERVER")
	printCommand(w, "serve", "Serve the method table over HTTP (--port)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// runMethodCmd implements `cryptoconditions <method> '<json params>'`.
//
// Exit codes:
//
//	0 = the method returned a result
//	1 = the method reported an error
//	2 = usage or runtime error
func runMethodCmd(method string, args []string, stdout, stderr io.Writer) int {
	params := map[string]any{}
	switch len(args) {
	case 0:
	case 1:
		if err := json.Unmarshal([]byte(args[0]), &params); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: params is not a JSON object: %v\n", err)
			return 2
		}
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %s takes a single JSON params argument\n", method)
		return 2
	}

	srv, err := rpc.NewServer()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	result, err := srv.Call(context.Background(), method, params)
	if err != nil {
		result = rpc.Result{"error": err.Error()}
	}
	if code := writeResult(stdout, stderr, result); code != 0 {
		return code
	}
	if err != nil {
		return 1
	}
	return 0
}

// runRPCCmd implements `cryptoconditions rpc [request]`. The envelope
// errors are reported in the response body, so the exit code only reflects
// whether the request could be read.
func runRPCCmd(args []string, stdout, stderr io.Writer) int {
	var raw []byte
	switch len(args) {
	case 0:
		b, err := io.ReadAll(stdin)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: reading request: %v\n", err)
			return 2
		}
		raw = b
	case 1:
		raw = []byte(args[0])
	default:
		_, _ = fmt.Fprintln(stderr, "Error: rpc takes a single request argument")
		return 2
	}

	srv, err := rpc.NewServer()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	result := srv.Handle(context.Background(), raw)
	if code := writeResult(stdout, stderr, result); code != 0 {
		return code
	}
	if _, failed := result["error"]; failed {
		return 1
	}
	return 0
}

func runMethodsCmd(stdout, stderr io.Writer) int {
	srv, err := rpc.NewServer()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	for _, m := range srv.Methods() {
		_, _ = fmt.Fprintf(stdout, "%s%-20s%s %s\n", ColorGreen, m.Name, ColorReset, m.Description)
	}
	return 0
}

func writeResult(stdout, stderr io.Writer, result rpc.Result) int {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encoding result: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}
