package navigate

import "context"

// ContentKind tells the renderer whether the turn lands on a menu, a leaf
// response, or the help text.
type ContentKind string

const (
	ContentMenu     ContentKind = "menu"
	ContentResponse ContentKind = "response"
	ContentHelp     ContentKind = "help"
	ContentError    ContentKind = "error"
)

// OptionTarget is the resolved destination of a menu option.
type OptionTarget struct {
	MenuID     string
	ResponseID string
}

// OptionLookup resolves a menu option key against the content data. A nil
// result means the option does not exist on that menu.
type OptionLookup interface {
	ResolveOption(ctx context.Context, menuID, key string) (*OptionTarget, error)
}

// Step is the computed outcome of one conversational turn.
type Step struct {
	NewState   string
	NewHistory []string
	Kind       ContentKind
	Target     string
	Valid      bool
}

// rejected returns the no-op step that leaves session state untouched.
func rejected(state string, history []string) Step {
	return Step{NewState: state, NewHistory: history, Kind: ContentError}
}

// Advance applies one validated input to the current session position.
// "go home" resets the history to the root, "back" pops it, and selecting an
// option pushes the destination menu. Invalid inputs and unknown options
// reject the turn without mutating the stack.
func Advance(ctx context.Context, lookup OptionLookup, input string, state string, history []string) (Step, error) {
	v := Classify(input)
	if !v.Valid {
		return rejected(state, history), nil
	}

	newHistory := make([]string, len(history))
	copy(newHistory, history)
	if len(newHistory) == 0 {
		newHistory = DefaultHistoryStack()
	}

	switch v.Action {
	case ActionGoMain:
		return Step{
			NewState:   "0",
			NewHistory: DefaultHistoryStack(),
			Kind:       ContentMenu,
			Target:     "0",
			Valid:      true,
		}, nil

	case ActionGoBack:
		if len(newHistory) > 1 {
			newHistory = newHistory[:len(newHistory)-1]
		}
		prev := "0"
		if len(newHistory) > 0 {
			prev = newHistory[len(newHistory)-1]
		}
		return Step{
			NewState:   prev,
			NewHistory: newHistory,
			Kind:       ContentMenu,
			Target:     prev,
			Valid:      true,
		}, nil

	case ActionShowHelp:
		return Step{
			NewState:   state,
			NewHistory: newHistory,
			Kind:       ContentHelp,
			Target:     "help",
			Valid:      true,
		}, nil

	case ActionSelectOption:
		target, err := lookup.ResolveOption(ctx, state, v.Target)
		if err != nil {
			return Step{}, err
		}
		if target == nil {
			return rejected(state, history), nil
		}
		if target.MenuID != "" {
			if !contains(newHistory, target.MenuID) {
				newHistory = append(newHistory, target.MenuID)
			}
			return Step{
				NewState:   target.MenuID,
				NewHistory: newHistory,
				Kind:       ContentMenu,
				Target:     target.MenuID,
				Valid:      true,
			}, nil
		}
		if target.ResponseID != "" {
			return Step{
				NewState:   state,
				NewHistory: newHistory,
				Kind:       ContentResponse,
				Target:     target.ResponseID,
				Valid:      true,
			}, nil
		}
		return rejected(state, history), nil
	}

	return rejected(state, history), nil
}

// DefaultHistoryStack returns a fresh navigation stack rooted at the main menu.
func DefaultHistoryStack() []string {
	return []string{"0"}
}

func contains(stack []string, id string) bool {
	for _, s := range stack {
		if s == id {
			return true
		}
	}
	return false
}
