package model

// Menu is one node of the menu tree shown to users.
type Menu struct {
	ID      string
	Title   string
	Header  *string
	Footer  *string
	Options []MenuOption
	Active  bool
}

// MenuOption is a selectable entry on a menu. Exactly one of TargetMenuID or
// TargetResponseID should be set.
type MenuOption struct {
	MenuID           string
	Key              string
	Label            string
	TargetMenuID     *string
	TargetResponseID *string
	Position         int
	Active           bool
}

// Response is a leaf content body reachable from a menu option.
type Response struct {
	ID        string
	Category  *string
	Body      string
	NextSteps *string
	Active    bool
}

// Names of the configurable system texts resolved through the content layer.
const (
	BotMessageWelcome        = "welcome"
	BotMessageSessionExpired = "session_expired"
	BotMessageInvalidOption  = "invalid_option"
	BotMessageNonText        = "non_text"
	BotMessageFreeText       = "free_text"
	BotMessageMissingContent = "missing_content"
)

// WAAccount is the active WhatsApp Business account configuration.
type WAAccount struct {
	ID              string
	Alias           string
	PhoneID         string
	AccessToken     string
	APIBase         string
	APIVersion      string
	TypingIndicator bool
	Active          bool
}
