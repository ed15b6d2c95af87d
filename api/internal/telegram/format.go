package telegram

import (
	"fmt"
	"strings"

	"medlist/api/internal/medlist"
	"medlist/api/internal/ocr/types"
)

func helpText(engines []string) string {
	return "Send a photo (or image file) of a medication list and I will reply with the medications I can read.\n\n" +
		"Commands:\n" +
		"/engine - show the current model\n" +
		"/engine <name> - switch model (" + strings.Join(engines, ", ") + ")\n" +
		"/engine default - back to the default model\n" +
		"/health - service check"
}

// FormatList renders list as a numbered plain-text reply.
func FormatList(list types.MedicationList) string {
	if len(list.Medications) == 0 {
		return "No medications found in this image."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💊 Medications (%d):\n", len(list.Medications))
	for i, m := range list.Medications {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, strings.TrimSpace(m.MedicationName))
		if s := strings.TrimSpace(m.Frequency); s != "" {
			b.WriteString("   Frequency: " + s + "\n")
		}
		if s := strings.TrimSpace(m.Instructions); s != "" {
			b.WriteString("   Instructions: " + s + "\n")
		}
		if m.IsPRN {
			b.WriteString("   As needed (PRN)")
			if s := strings.TrimSpace(m.Indication); s != "" {
				b.WriteString(": " + s)
			}
			b.WriteString("\n")
		} else if s := strings.TrimSpace(m.Indication); s != "" {
			b.WriteString("   For: " + s + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatError never echoes model output back to the chat.
func FormatError(err error) string {
	switch medlist.Outcome(err) {
	case "invalid_input":
		return "⚠️ I could not read that image. Send a JPEG, PNG, WebP or GIF photo."
	case "unknown_engine":
		return "⚠️ The selected model is not available. Use /engine default."
	case "cancelled":
		return "⚠️ Reading the list took too long. Please try again."
	case "upstream":
		return "⚠️ The model service failed. Please try again later."
	case "extraction", "schema":
		return "⚠️ I could not make out a medication list. Try a sharper, well-lit photo."
	}
	return "⚠️ Something went wrong. Please try again."
}
