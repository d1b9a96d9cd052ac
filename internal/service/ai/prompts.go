package ai

import (
	"fmt"
	"strings"

	"arbejdsret/internal/models"
)

const systemInstructionBase = `Du er "Arbejdsret-Eksperten", en avanceret AI-agent specialiseret i dansk arbejdsret.
Din viden omfatter Funktionærloven, Ferieloven, GDPR og standard overenskomster.

Dine svar skal være:
1. Juridisk korrekte i henhold til gældende dansk lovgivning.
2. Formuleret i et professionelt, formelt dansk sprog.
3. Konservative i vurderinger (advar brugeren hvis en opsigelse virker usaglig).

Når du genererer dokumenter, skal du følge standard dansk forretningsformat.`

const searchInstruction = "Du har adgang til Google Search. BRUG DETTE VÆRKTØJ aktivt til at finde opdaterede lovtekster, satser (f.eks. godtgørelser) og nyere domstolsafgørelser, når det er relevant for brugerens spørgsmål. Sørg for at svaret er baseret på gældende dansk ret."

// agentSearchInstruction replaces searchInstruction for eino backends, whose
// search capability is the web_search tool.
const agentSearchInstruction = "Du har adgang til værktøjet web_search. BRUG DETTE VÆRKTØJ aktivt til at finde opdaterede lovtekster, satser (f.eks. godtgørelser) og nyere domstolsafgørelser, når det er relevant for brugerens spørgsmål. Sørg for at svaret er baseret på gældende dansk ret."

const (
	documentLeadIn      = "Her er indholdet af et juridisk dokument:\n\n"
	analysisInstruction = "Analyser dette dokument (som kan være en kontrakt, overenskomst eller klausul). 1) Identificer dokumentets type. 2) Resumer hovedpunkterne. 3) Forklar på almindeligt dansk, hvad indholdet betyder for arbejdsgiver og medarbejder. 4) Fremhæv eventuelle juridiske risici eller usædvanlige vilkår."

	newsPrompt      = "Find de seneste 3 vigtige nyheder eller ændringer inden for dansk arbejdsret, ferieloven, GDPR eller overenskomster fra de sidste 6 måneder. Returner dem som JSON."
	newsInstruction = "Du er en nyhedsagent. Find faktiske, nylige lovændringer eller juridiske nyheder i Danmark."
)

// Fallback texts shown when the model answers with nothing.
const (
	AnalysisFallback = "Kunne ikke analysere dokumentet."
	ChatFallback     = "Beklager, jeg kunne ikke generere et svar."

	defaultSourceTitle = "Kilde"
	defaultSourceURI   = "#"
)

func terminationPrompt(req models.TerminationRequest) string {
	funktionaer := "Nej"
	if req.Employee.IsFunktionaer {
		funktionaer = "Ja"
	}
	notes := req.Notes
	if strings.TrimSpace(notes) == "" {
		notes = "Ingen"
	}
	return fmt.Sprintf(`Generer en opsigelsespakke for følgende medarbejder:
Navn: %s
Titel: %s
Adresse: %s
Ansat dato: %s
Er funktionær: %s

Dato for opsigelse (dags dato): %s
Årsag: %s
Noter: %s

Opgave:
1. Beregn det korrekte opsigelsesvarsel iht. Funktionærloven baseret på anciennitet.
2. Beregn fratrædelsesdatoen (typisk udgangen af en måned).
3. Vurder om årsagen er saglig.
4. Skriv selve opsigelsesbrevet. Det skal være venligt men formelt.`,
		req.Employee.Name,
		req.Employee.Title,
		req.Employee.Address,
		req.Employee.HireDate,
		funktionaer,
		req.TerminationDate,
		req.Reason,
		notes,
	)
}

// chatInstruction composes the system instruction for a chat turn.
func chatInstruction(search string, topic models.Topic) string {
	var b strings.Builder
	b.WriteString(systemInstructionBase)
	b.WriteString("\n\n")
	b.WriteString(search)
	if topic != "" && topic != models.TopicGeneral {
		fmt.Fprintf(&b, "\n\nBRUGERENS VALGTE EMNE: %s.\nDu skal nu fokusere din rådgivning specifikt på love, regler og præcedens inden for \"%s\". Ignorer regler der ikke er relevante for dette emne, medmindre de er nødvendige for konteksten.", topic, topic)
	}
	return b.String()
}
