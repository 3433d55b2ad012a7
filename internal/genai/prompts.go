package genai

import (
	"fmt"

	"github.com/osteele/liquid"
)

// Prompt templates are Liquid so operators can override them from config
// later without a rebuild. Variables: extracted_content, date_type,
// date_value, question.

const reminderEmailTemplate = `You are an expert email assistant. Write a short, professional, and polite reminder email to a client about a specific contract-related event. The email should be clear, concise, and no longer than 300 words. It must include the following:

1. A warm greeting to the client.
2. A brief reminder of the {{ date_type }} and its significance.
3. Key event details:
  - Event type and purpose.
  - Date: {{ date_value }}, time, and location (if applicable).
  - Any additional relevant instructions or information.
  - Contact person for questions or clarifications.
4. A polite call to action encouraging the client to confirm or take any necessary steps (e.g., attending the meeting, signing the agreement, or reviewing the contract).

Begin the email with a line of the form "Subject: ..." naming the event. Ensure the email tone is professional yet approachable, with a clear structure and easy-to-read format.

Use the following text to extract details for the email: {{ extracted_content }}`

const callScriptTemplate = `You are a professional voice assistant. Write a short, friendly call script (under 120 words, plain spoken text, no markdown) reminding a client about an upcoming {{ date_type }} on {{ date_value }}. State who is calling, the event and its date, and one clear next step. Do not include stage directions or placeholders.

Use the following contract text for specifics: {{ extracted_content }}`

const intakeEmailTemplate = `You are an expert email assistant. Write a short, professional, and persuasive email to a client about finalizing an agreement. The email should be clear, concise, and no longer than 300 words. It should include the below 4 points as paragraphs:

1. A warm greeting to the client.
2. A brief explanation of the email's purpose (to finalize the agreement).
3. The key agreement details:
   - Client details if available (name or relevant information).
   - Important dates (effective date, completion date).
   - Any costs or payment terms.
   - Contact person for any questions or clarifications.
4. A call to action, encouraging the client to confirm their acceptance of the agreement by a specified date.

Ensure the email is professional, engaging, and easy to read, with the most important details highlighted for the client to review and take action.

The following text provides all the necessary details for the email: {{ extracted_content }}`

const structuredExtractionTemplate = `Extract the following fields from the contract text below and answer with ONLY a JSON object, no prose and no code fences. Fields:
  clientName (string), contactPerson (string), address (string), cost (string),
  dates (array of { "dateValue": "Jan 2, 2006 style string", "dateType": "Acceptance|Renewal|Expiration|Completion|Other" }),
  emailAddresses (array of { "entity": string, "email": string }),
  phoneNumbers (array of { "entity": string, "phoneNumber": string }).
Use empty strings or empty arrays for anything not present.

Contract text: {{ extracted_content }}`

const chatQuestionTemplate = `Based on the following text:

"{{ extracted_content }}"

Answer the question: "{{ question }}"`

var liquidEngine = liquid.NewEngine()

func render(tmpl string, bindings map[string]interface{}) (string, error) {
	out, err := liquidEngine.ParseAndRenderString(tmpl, bindings)
	if err != nil {
		return "", fmt.Errorf("genai: rendering prompt: %w", err)
	}
	return out, nil
}

// ReminderEmailPrompt builds the reminder-email generation prompt.
func ReminderEmailPrompt(extractedContent, dateType, dateValue string) (string, error) {
	return render(reminderEmailTemplate, map[string]interface{}{
		"extracted_content": extractedContent,
		"date_type":         dateType,
		"date_value":        dateValue,
	})
}

// CallScriptPrompt builds the voice-call script generation prompt.
func CallScriptPrompt(extractedContent, dateType, dateValue string) (string, error) {
	return render(callScriptTemplate, map[string]interface{}{
		"extracted_content": extractedContent,
		"date_type":         dateType,
		"date_value":        dateValue,
	})
}

// IntakeEmailPrompt builds the finalize-agreement email prompt used at
// document intake.
func IntakeEmailPrompt(extractedContent string) (string, error) {
	return render(intakeEmailTemplate, map[string]interface{}{
		"extracted_content": extractedContent,
	})
}

// StructuredExtractionPrompt builds the JSON field-extraction prompt.
func StructuredExtractionPrompt(extractedContent string) (string, error) {
	return render(structuredExtractionTemplate, map[string]interface{}{
		"extracted_content": extractedContent,
	})
}

// ChatQuestionPrompt builds the grounded Q&A prompt.
func ChatQuestionPrompt(extractedContent, question string) (string, error) {
	return render(chatQuestionTemplate, map[string]interface{}{
		"extracted_content": extractedContent,
		"question":          question,
	})
}
