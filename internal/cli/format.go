package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"arbejdsret/internal/models"
)

func yesNo(b bool) string {
	if b {
		return "Ja"
	}
	return "Nej"
}

func printTermination(w io.Writer, res *models.TerminationResponse) {
	fmt.Fprintf(w, "Gyldig begrundelse: %s\n", yesNo(res.IsValidReason))
	fmt.Fprintf(w, "Opsigelsesvarsel:   %s\n", res.CalculatedNoticePeriod)
	fmt.Fprintf(w, "Sidste arbejdsdag:  %s\n", res.LastWorkingDay)
	fmt.Fprintf(w, "Lovhenvisning:      %s\n", res.LegalReference)
	fmt.Fprintf(w, "\nForklaring:\n%s\n", res.Explanation)
	fmt.Fprintf(w, "\nOpsigelsesbrev:\n%s\n", res.LetterContent)
}

func printReply(w io.Writer, msg models.ChatMessage) {
	fmt.Fprintln(w, msg.Text)
	if len(msg.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nKilder:")
	for _, s := range msg.Sources {
		fmt.Fprintf(w, "  - %s (%s)\n", s.Title, s.URI)
	}
}

// printSessions lists sessions with relative update times. The active one is
// marked with an asterisk.
func printSessions(w io.Writer, sessions []*models.ChatSession, activeID string, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	for _, se := range sessions {
		marker := " "
		if se.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %-33s  [%s]  %s, updated %s\n",
			marker,
			se.ID,
			se.Title,
			se.Topic,
			messageCount(len(se.Messages)),
			humanize.RelTime(se.Updated(), now, "ago", "from now"),
		)
	}
}

func messageCount(n int) string {
	if n == 1 {
		return "1 message"
	}
	return humanize.Comma(int64(n)) + " messages"
}

func printTranscript(w io.Writer, se *models.ChatSession) {
	fmt.Fprintf(w, "%s  [%s]\n\n", se.Title, se.Topic)
	for _, m := range se.Messages {
		who := "Assistent"
		if m.Role == models.RoleUser {
			who = "Du"
		}
		fmt.Fprintf(w, "%s (%s):\n", who, m.Time().Format("2006-01-02 15:04"))
		printReply(w, m)
		fmt.Fprintln(w)
	}
}

func printNews(w io.Writer, items []models.LegalNewsItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "Ingen nyheder fundet.")
		return
	}
	for _, item := range items {
		fmt.Fprintf(w, "%-10s [%s] %s\n", item.Date, item.Tag, item.Title)
		if s := strings.TrimSpace(item.Summary); s != "" {
			fmt.Fprintf(w, "           %s\n", s)
		}
	}
}
