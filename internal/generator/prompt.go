package generator

import (
	"fmt"
	"strings"

	"podium/internal/persona"
)

func buildSystemPrompt(p persona.Persona) string {
	return fmt.Sprintf(
		"You are %s, a %s on a practice panel. Personality: %s Questioning style: %s "+
			"Stay fully in character. Always answer with a single JSON object and nothing else.",
		p.Name, p.Role, p.Personality, p.Style,
	)
}

func buildQuestionPrompt(p persona.Persona, topic string, previousQuestions []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The session topic is %q.\n", topic)

	if len(previousQuestions) > 0 {
		b.WriteString("Questions already asked in this session (do not repeat them):\n")
		for _, q := range previousQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	b.WriteString("\nAsk your next question, in character, as ")
	b.WriteString(p.Role)
	b.WriteString(".\nRespond with JSON: {\"question\": \"...\"}")

	return b.String()
}

func buildFeedbackPrompt(p persona.Persona, question, answer, topic string) string {
	return fmt.Sprintf(`You asked this question during a session about %q:
%q

The candidate answered:
%q

Evaluate the answer as %s. Respond with JSON:
{
  "feedback": "detailed constructive feedback on the answer",
  "score": <integer between 1 and 10>,
  "improved_answer": "a suggested improved version of the answer",
  "satisfied": <true if you are satisfied with the answer>
}`, topic, question, answer, p.Role)
}
