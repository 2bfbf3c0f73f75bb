package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	FormParseDataDescription = `Parse "Label: Value" personal data text into normalized keys.

**When to use:** Check how free-form personal data will be read before filling a form with it.

**Why it's useful:** Shows exactly which keys the matcher will see. Labels are lower-cased, punctuation is folded ("Driver's License #" becomes "drivers license number") and lines without a colon are ignored.

**Examples:**
• Check a data block: "Parse 'First Name: Jane\nZIP Code: 94107' and show the keys"
• Spot duplicates: "Which of my labels collapse into the same key?"

**Data format:**
One entry per line, label and value separated by the first colon. Write "[Leave Blank]" as the value to clear a field on purpose. Later lines override earlier ones with the same key.

**Best practices:** Run this first when a fill leaves fields empty; a label that normalizes differently than expected is the usual cause.`

	FormListFieldsDescription = `List the interactive form fields of a PDF.

**When to use:** Inspect a form before filling it, or debug why a field was not filled.

**Why it's useful:** Reports each field's fully qualified name, tooltip name, kind (text, checkbox, choice), options, flags and current value in document order.

**Examples:**
• Inspect an application: "List the fields in job-application.pdf"
• Find option values: "What choices does the State field in w4.pdf accept?"

**Common workflows:**
1. Form discovery: form_list_fields → write data using the field labels → form_fill
2. Debugging: form_list_fields → form_preview_match → adjust labels

**Best practices:** Use the tooltip name as your label when a field is called something like "Text1".`

	FormPreviewMatchDescription = `Show how personal data would be matched to a PDF's fields without writing anything.

**When to use:** Before form_fill, to review which field receives which value.

**Why it's useful:** Every field gets a decision: exact, synonym or fuzzy match, or the reason it stays empty (no matching data, read-only, value not among the choices).

**Examples:**
• Dry run: "Preview filling lease.pdf with my data"
• Tune labels: "Why is Phone not matched in rental-form.pdf?"

**Best practices:** Fuzzy matches are the ones to double-check. Rename a label to the field's name for an exact match.`

	FormFillDescription = `Fill a PDF form from "Label: Value" personal data and save the result.

**When to use:** Produce a completed copy of a form. The source document is never modified.

**Why it's useful:** Fills text fields, checkboxes (yes/no, true/false, y/n), dropdowns and radio groups while leaving the rest of the document untouched. Returns a per-field report and a session id that form_send_email can use.

**Examples:**
• Fill and save: "Fill application.pdf with my details"
• Custom output: "Fill w4.pdf and save it as w4-jane.pdf"

**Common workflows:**
1. form_list_fields → form_preview_match → form_fill → form_send_email
2. Batch: form_fill once per form with the same data block

**Best practices:** The output is written next to the source as <name>_filled.pdf unless an output path is given. Session ids expire; email soon after filling.`

	FormSendEmailDescription = `Email a filled PDF from an earlier form_fill as an attachment.

**When to use:** Deliver a completed form after form_fill returned a session id.

**Why it's useful:** Sends the exact bytes that were produced, once. A session is consumed by a successful send and kept for a retry when sending fails.

**Examples:**
• Send to HR: "Email the filled application to hr@example.com"
• Custom subject: "Send it with subject 'Lease application - Jane Doe'"

**Best practices:** Requires SMTP settings on the server. Check form_server_info to see whether email is configured.`

	FormServerInfoDescription = `Get server information, configuration and usage guidance.

**When to use:** Learn which directory the tools can access, whether email is configured and how long sessions last.

**Why it's useful:** Explains the data format and the recommended tool order for new users.

**Best practices:** Call once at the start of a session.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"form_parse_data":    FormParseDataDescription,
	"form_list_fields":   FormListFieldsDescription,
	"form_preview_match": FormPreviewMatchDescription,
	"form_fill":          FormFillDescription,
	"form_send_email":    FormSendEmailDescription,
	"form_server_info":   FormServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns all tool names, sorted
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
