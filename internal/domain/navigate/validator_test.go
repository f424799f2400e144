package navigate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "lowercase", input: "hola", want: "HOLA"},
		{name: "surrounding whitespace", input: "  menu  ", want: "MENU"},
		{name: "internal whitespace collapsed", input: "buen   dia", want: "BUEN DIA"},
		{name: "emoji stripped", input: "hola 👋", want: "HOLA"},
		{name: "emoji between words", input: "buenas🌞tardes", want: "BUENAS TARDES"},
		{name: "digit unchanged", input: "3", want: "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestClassify_SpecialCommands(t *testing.T) {
	tests := []struct {
		input  string
		action string
		target string
	}{
		{input: "0", action: ActionGoMain, target: "0"},
		{input: "menu", action: ActionGoMain, target: "0"},
		{input: "#", action: ActionGoBack, target: TargetAuto},
		{input: "volver", action: ActionGoBack, target: TargetAuto},
		{input: "atras", action: ActionGoBack, target: TargetAuto},
		{input: "*", action: ActionShowHelp, target: "help"},
		{input: "ayuda", action: ActionShowHelp, target: "help"},
		{input: "info", action: ActionShowHelp, target: "help"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := Classify(tt.input)
			assert.True(t, v.Valid)
			assert.Equal(t, InputCommand, v.Kind)
			assert.Equal(t, tt.action, v.Action)
			assert.Equal(t, tt.target, v.Target)
		})
	}
}

func TestClassify_Greetings(t *testing.T) {
	for _, input := range []string{"hola", "HOLA", "buenas tardes", "buen dia"} {
		t.Run(input, func(t *testing.T) {
			v := Classify(input)
			assert.True(t, v.Valid)
			assert.Equal(t, InputGreeting, v.Kind)
			assert.Equal(t, ActionGoMain, v.Action)
			assert.Equal(t, "0", v.Target)
		})
	}
}

func TestClassify_MenuDigits(t *testing.T) {
	for _, input := range []string{"1", "9", "10", "12"} {
		t.Run(input, func(t *testing.T) {
			v := Classify(input)
			assert.True(t, v.Valid)
			assert.Equal(t, InputMenu, v.Kind)
			assert.Equal(t, ActionSelectOption, v.Action)
			assert.Equal(t, input, v.Target)
		})
	}

	// 13 exceeds the main-menu range and 0 is a command, not a selection.
	v := Classify("13")
	assert.False(t, v.Valid)
	assert.Equal(t, InputInvalid, v.Kind)
}

func TestClassify_SubmenuLetters(t *testing.T) {
	v := Classify("a")
	assert.True(t, v.Valid)
	assert.Equal(t, InputSubmenu, v.Kind)
	assert.Equal(t, "A", v.Target)

	v = Classify("Z")
	assert.True(t, v.Valid)
	assert.Equal(t, InputSubmenu, v.Kind)
}

func TestClassify_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace only", input: "   "},
		{name: "sentence", input: "quiero reservar una parcela"},
		{name: "two letters", input: "AB"},
		{name: "negative number", input: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.input)
			assert.False(t, v.Valid)
			assert.Equal(t, InputInvalid, v.Kind)
			assert.Equal(t, ActionError, v.Action)
		})
	}
}

func TestFreeText(t *testing.T) {
	tests := []struct {
		name    string
		cleaned string
		want    bool
	}{
		{name: "empty", cleaned: "", want: false},
		{name: "single char", cleaned: "X", want: false},
		{name: "all digits", cleaned: "999", want: false},
		{name: "sentence", cleaned: "QUIERO RESERVAR", want: true},
		{name: "mixed", cleaned: "OPCION 3", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FreeText(tt.cleaned))
		})
	}
}
