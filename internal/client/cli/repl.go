package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// promptEnabled reports whether to print a prompt before each line; piped
// input gets none.
var promptEnabled = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	inOnboarding() bool

	Open(ctx context.Context, target string) error
	Status(ctx context.Context) error
	Resume(ctx context.Context) error

	SetNickname(ctx context.Context, v string) error
	CheckNickname(ctx context.Context) error
	SelectCountry(ctx context.Context, name string) error
	ListCountries(ctx context.Context) error
	SetSchool(ctx context.Context, text string) error
	Suggest(ctx context.Context) error
	Next(ctx context.Context) error
	Back(ctx context.Context) error

	Rename(ctx context.Context, nickname string) error
	Badge(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL starts a read-eval-print loop for the exmate client.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'; the rest of the line is the
// argument. Unknown commands are reported back to the user. The loop exits
// on scanner EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
//	Signed out:
//	  - open <url>       load a sign-in redirect URL
//	  - resume           continue an unfinished registration
//	  - status           show session and connection state
//
//	Registering:
//	  - nick <name>      enter a nickname
//	  - check            check nickname availability
//	  - country <name>   choose the exchange country
//	  - countries        list selectable countries
//	  - school <name>    enter the exchange school
//	  - suggest          show matching popular schools
//	  - next | back      move between steps
//
//	Signed in:
//	  - rename <name>    change nickname
//	  - badge            refresh and show unread notifications
//	  - reconnect        reopen the realtime channel
//	  - logout           sign out
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if promptEnabled() {
			printlnFn(fmt.Sprintf("exmate %s> ", statusFn()))
		}
		if !scanner.Scan() {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)
		if cmd == "" {
			continue
		}

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText(a))

		case "open":
			err = a.Open(ctx, arg)
		case "status":
			err = a.Status(ctx)
		case "resume":
			err = a.Resume(ctx)

		case "nick":
			err = a.SetNickname(ctx, arg)
		case "check":
			err = a.CheckNickname(ctx)
		case "country":
			err = a.SelectCountry(ctx, arg)
		case "countries":
			err = a.ListCountries(ctx)
		case "school":
			err = a.SetSchool(ctx, arg)
		case "suggest":
			err = a.Suggest(ctx)
		case "next":
			err = a.Next(ctx)
		case "back":
			err = a.Back(ctx)

		case "rename":
			err = a.Rename(ctx, arg)
		case "badge":
			err = a.Badge(ctx)
		case "reconnect":
			err = a.Reconnect(ctx)
		case "logout":
			err = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

func helpText(a execIface) string {
	switch {
	case a.inOnboarding():
		return "Available commands: nick, check, country, countries, school, suggest, next, back, status, exit"
	case a.isLoggedIn():
		return "Available commands: status, rename, badge, reconnect, logout, exit"
	default:
		return "Available commands: open <url>, resume, status, reconnect, exit"
	}
}
