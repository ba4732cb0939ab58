package chattransport

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
)

// ParseMode tells the chat client how to interpret replies.
const ParseMode = "Markdown"

const fallbackName = "bob"

// RenderAvailable lists the pool as it was when the request was evaluated.
func RenderAvailable(summary entities.AvailableSummary) string {
	if summary.Total == 0 || len(summary.Categories) == 0 {
		return "**No drops currently available.**\n\n"
	}
	var b strings.Builder
	b.WriteString("**Available drops:**\n\n")
	for _, category := range summary.Categories {
		fmt.Fprintf(&b, "• %s: %d available\n", category.Category, category.Count)
	}
	fmt.Fprintf(&b, "\n**Total available:** %d\n\n", summary.Total)
	return b.String()
}

// RenderDropResult builds the full /start reply: the available list followed by
// the outcome message.
func RenderDropResult(result commands.RequestDropResult, displayName, marker string) string {
	var b strings.Builder
	b.WriteString(RenderAvailable(result.Available))

	switch result.Outcome {
	case commands.DropOutcomeNotVerified:
		b.WriteString(RenderVerificationInstructions(displayName, marker))
	case commands.DropOutcomeAlreadyClaimedToday:
		b.WriteString("**You have already claimed your drop for today. Come back tomorrow!** 🕒")
	case commands.DropOutcomeAllocated:
		if result.Allocation == nil {
			b.WriteString(RenderInternalError())
			break
		}
		b.WriteString("🎉 **Congratulations! You received:**\n\n")
		b.WriteString(RenderItem(result.Allocation.Item))
	case commands.DropOutcomePoolExhausted:
		b.WriteString("**No drops available right now. Please try again later.**")
	default:
		b.WriteString(RenderInternalError())
	}
	return b.String()
}

// RenderItem prints the category and every payload field in provisioned order.
func RenderItem(item entities.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", item.Category)
	for _, field := range item.Payload {
		fmt.Fprintf(&b, "**%s:** `%s`\n", capitalize(field.Name), field.Value)
	}
	return b.String()
}

func RenderVerificationInstructions(displayName, marker string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = fallbackName
	}
	return fmt.Sprintf(`**To claim drops, please add**

`+"`%s`"+`

You will need to add the entire line above to your display name (last name) and try again.

If your name was `+"`%s`"+` it should now be `+"`%s %s`"+`

This means that you have to change your display name to be able to claim any drops.`,
		marker, name, name, marker)
}

func RenderHelp(marker string) string {
	return fmt.Sprintf(`**🤖 Drop Help**

Free daily drops for verified members.

**📋 Commands:**
• `+"`/start`"+` - Show available drops and claim your daily drop
• `+"`/help`"+` - Show this help message

**✅ How to get verified:**
1. Add `+"`%s`"+` to your display name (last name)
2. Use the `+"`/start`"+` command to claim your drop

**📖 Rules:**
• One drop per member per day
• Must be verified to claim drops
• Available drops change regularly

**Enjoy! 🎉**`, marker)
}

func RenderHint() string {
	return "👋 Hi! Use `/start` to get your drop or `/help` for more information."
}

func RenderInternalError() string {
	return "**We could not process your request right now. Please try again later.**"
}

func RenderThrottled() string {
	return "⏳ You are sending commands too quickly. Please wait a moment and try again."
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(value string) string {
	if value == "" {
		return value
	}
	first, size := utf8.DecodeRuneInString(value)
	return string(unicode.ToUpper(first)) + strings.ToLower(value[size:])
}
