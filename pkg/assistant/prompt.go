package assistant

import (
	"fmt"
	"strings"

	"github.com/stippi/go-voice-assistant/pkg/chat"
)

const defaultPersona = `You are a helpful voice assistant. Your replies are spoken aloud,
so keep them short, conversational and free of markup. Use the available
functions when the user asks for timers, music, calendar entries or
wants you to remember something.`

// systemMessage builds a fresh system message. It is regenerated for
// every completion request so the model always sees current time,
// timers, music state and memory, never the values from the start of
// the turn.
func (a *Assistant) systemMessage() chat.Message {
	var b strings.Builder

	persona := a.cfg.Persona
	if persona == "" {
		persona = defaultPersona
	}
	b.WriteString(persona)
	b.WriteString("\n\n")

	now := a.cfg.Now()
	fmt.Fprintf(&b, "Current time: %s\n", now.Format("Monday, 2006-01-02 15:04 (MST)"))
	if a.cfg.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", a.cfg.Location)
	}
	if a.cfg.Calendar != nil {
		connected := "not connected"
		if a.cfg.Calendar.IsAuthenticated() {
			connected = "connected"
		}
		fmt.Fprintf(&b, "Calendar: %s\n", connected)
	}
	if a.cfg.Timers != nil {
		fmt.Fprintf(&b, "\nActive timers:\n%s\n", a.cfg.Timers.Render())
	}
	if a.cfg.Music != nil {
		fmt.Fprintf(&b, "\nMusic: %s\n", a.cfg.Music.Render())
	}
	if a.cfg.Memory != nil {
		fmt.Fprintf(&b, "\nLong-term memory:\n%s\n", a.cfg.Memory.Render())
	}

	return chat.NewSystemMessage(strings.TrimRight(b.String(), "\n"))
}
