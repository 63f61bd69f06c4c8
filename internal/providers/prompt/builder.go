// Package prompt assembles the instruction block sent to the generative
// model. Assembly is pure string building: same inputs, same bytes.
package prompt

import (
	"fmt"
	"strings"

	"autostory/internal/domain"
)

const systemPreamble = "Eres un experto en storytelling y redacción creativa. " +
	"Tu tarea es generar una narrativa convincente y de alta calidad basada en el contexto proporcionado. " +
	"Debes seguir estrictamente las directivas de formato y tono."

const outputDiscipline = "Genera la narrativa final. No incluyas encabezados, solo el texto solicitado. " +
	"La narrativa no debe exceder las 150 palabras."

// Build renders the full instruction block. The caption is optional; when
// empty its section is omitted entirely. Format and tone values appear
// verbatim in the numbered directives.
func Build(userText string, format domain.Format, tone domain.Tone, caption string) string {
	var b strings.Builder

	b.WriteString(systemPreamble)

	b.WriteString("\n\n**Texto del Usuario (Idea Central):**\n---\n")
	b.WriteString(userText)
	b.WriteString("\n---\n")

	if caption != "" {
		b.WriteString("\n**Contexto de la Imagen:**\n---\n")
		b.WriteString(caption)
		b.WriteString("\n---\n")
	}

	b.WriteString("\n**Directivas de Generación:**\n---\n")
	fmt.Fprintf(&b, "1. **Formato Requerido:** %s\n", format)
	fmt.Fprintf(&b, "2. **Tono de la Narrativa:** %s\n", tone)
	b.WriteString("---\n")

	b.WriteString("\n**Tarea:**\n")
	b.WriteString(outputDiscipline)

	return strings.TrimSpace(b.String())
}
