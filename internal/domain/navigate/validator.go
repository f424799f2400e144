// Package navigate implements the pure menu-tree navigation rules: input
// classification and session state transitions. It has no storage or network
// dependencies so the conversational behavior is testable in isolation.
package navigate

import (
	"regexp"
	"strings"
)

// InputKind classifies a normalized user input.
type InputKind string

const (
	InputCommand  InputKind = "command"
	InputGreeting InputKind = "greeting"
	InputMenu     InputKind = "menu"
	InputSubmenu  InputKind = "submenu"
	InputInvalid  InputKind = "invalid"
)

// Actions produced by classification.
const (
	ActionGoMain       = "go_main_menu"
	ActionGoBack       = "go_back"
	ActionShowHelp     = "show_help"
	ActionGoMenu       = "go_menu"
	ActionSelectOption = "select_option"
	ActionError        = "error"
)

// TargetAuto marks commands whose target is derived from session state.
const TargetAuto = "auto"

// Validation is the outcome of classifying one user input.
type Validation struct {
	Valid   bool
	Kind    InputKind
	Action  string
	Target  string
	Cleaned string
}

// specialCommands maps exact normalized tokens to their action and target.
var specialCommands = map[string]struct{ action, target string }{
	"0":      {ActionGoMain, "0"},
	"MENU":   {ActionGoMain, "0"},
	"#":      {ActionGoBack, TargetAuto},
	"BACK":   {ActionGoBack, TargetAuto},
	"VOLVER": {ActionGoBack, TargetAuto},
	"ATRAS":  {ActionGoBack, TargetAuto},
	"*":      {ActionShowHelp, "help"},
	"HELP":   {ActionShowHelp, "help"},
	"AYUDA":  {ActionShowHelp, "help"},
	"INFO":   {ActionShowHelp, "help"},
}

// greetings are phrases that restart the conversation at the main menu.
var greetings = map[string]struct{}{
	"HOLA":          {},
	"BUENAS":        {},
	"BUEN DIA":      {},
	"BUENOS DIAS":   {},
	"BUENAS TARDES": {},
	"BUENAS NOCHES": {},
}

var (
	menuDigitRe  = regexp.MustCompile(`^(?:[1-9]|1[0-2])$`)
	submenuRe    = regexp.MustCompile(`^[A-Z]$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Strips emoji and pictographic ranges while keeping letters and digits.
	emojiRe = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{2190}-\x{21FF}\x{2B00}-\x{2BFF}\x{FE0F}\x{200D}\x{20E3}]+`)
)

// Normalize uppercases the input, strips emoji, and collapses whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = emojiRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return strings.ToUpper(text)
}

// Classify validates one raw user input against the supported grammar:
// special commands, greetings, main-menu digits (1-12) and submenu letters
// (A-Z). Everything else is invalid.
func Classify(raw string) Validation {
	cleaned := Normalize(raw)

	if cleaned == "" {
		return Validation{Kind: InputInvalid, Action: ActionError}
	}

	if cmd, ok := specialCommands[cleaned]; ok {
		return Validation{
			Valid:   true,
			Kind:    InputCommand,
			Action:  cmd.action,
			Target:  cmd.target,
			Cleaned: cleaned,
		}
	}

	if _, ok := greetings[cleaned]; ok {
		return Validation{
			Valid:   true,
			Kind:    InputGreeting,
			Action:  ActionGoMain,
			Target:  "0",
			Cleaned: cleaned,
		}
	}

	if menuDigitRe.MatchString(cleaned) {
		return Validation{
			Valid:   true,
			Kind:    InputMenu,
			Action:  ActionSelectOption,
			Target:  cleaned,
			Cleaned: cleaned,
		}
	}

	if submenuRe.MatchString(cleaned) {
		return Validation{
			Valid:   true,
			Kind:    InputSubmenu,
			Action:  ActionSelectOption,
			Target:  cleaned,
			Cleaned: cleaned,
		}
	}

	return Validation{Kind: InputInvalid, Action: ActionError, Cleaned: cleaned}
}

// FreeText reports whether a cleaned invalid input reads like conversational
// text rather than a mistyped option. Used to pick the gentler re-prompt.
func FreeText(cleaned string) bool {
	if cleaned == "" {
		return false
	}
	if len(cleaned) <= 1 {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}
