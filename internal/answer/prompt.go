package answer

import (
	"fmt"
	"strings"

	"github.com/kalambet/frontdesk/internal/knowledge"
)

// emptyCorpusPlaceholder stands in for retrieved context when the
// knowledge base has nothing to offer.
const emptyCorpusPlaceholder = "No salon data found."

const answerTemplate = `You are a helpful AI receptionist for a salon.
If the customer asks an absurd question not related to the salon, answer appropriately; no need to escalate.
Always answer truthfully using the context below.
If you don't find the answer in the context, politely say you'll confirm with your supervisor later.

Salon Knowledge:
%s

User Question:
%s

Answer:`

const refineTemplate = `Refine the following supervisor's response into a professional, friendly, and natural salon chatbot message.

Question: %s
Supervisor's Answer: %s

Return only the polished response.`

const polishTemplate = "Polish this text for a friendly salon receptionist chatbot:\n\n%s"

func buildAnswerPrompt(question string, chunks []knowledge.Result) string {
	context := emptyCorpusPlaceholder
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		context = strings.Join(texts, "\n")
	}
	return fmt.Sprintf(answerTemplate, context, question)
}

func buildRefinePrompt(question, supervisorAnswer string) string {
	return fmt.Sprintf(refineTemplate, question, supervisorAnswer)
}

func buildPolishPrompt(text string) string {
	return fmt.Sprintf(polishTemplate, text)
}
