package chattransport

import "strings"

type CommandKind string

const (
	CommandStart CommandKind = "start"
	CommandHelp  CommandKind = "help"
	CommandText  CommandKind = "text"
)

// ParseCommand recognises /start, /claim and /help, including the
// "/start@SomeBot" form chat clients send in group conversations. Anything
// else is plain text.
func ParseCommand(text string) CommandKind {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return CommandText
	}
	head := strings.ToLower(fields[0])
	if !strings.HasPrefix(head, "/") {
		return CommandText
	}
	if at := strings.IndexByte(head, '@'); at > 0 {
		head = head[:at]
	}
	switch head {
	case "/start", "/claim":
		return CommandStart
	case "/help":
		return CommandHelp
	default:
		return CommandText
	}
}

// DisplayName joins the profile name parts the way chat clients show them.
func DisplayName(firstName, lastName string) string {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	switch {
	case firstName == "":
		return lastName
	case lastName == "":
		return firstName
	default:
		return firstName + " " + lastName
	}
}
