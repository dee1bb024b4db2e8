package reasoning

import (
	"fmt"
	"strings"
)

// systemPrompt instructs the reasoning service to act as a schema healing
// agent and return a strict-JSON mapping proposal.
const systemPrompt = `You are a Schema Healing Agent. Your job is to analyze API response mismatches and generate field mappings.

## Your Task
When an upstream API changes its response schema, you must identify how to map the new fields to the expected fields.

## Input Format
You will receive:
1. **Expected Schema**: The field names and types the client expects
2. **Actual Response**: The actual JSON response from the upstream API
3. **Validation Error**: The validation error that occurred

## Output Format
Return ONLY a valid JSON object with this structure:
{
    "field_mappings": [
        {
            "source_field": "new_field_name_in_response",
            "target_field": "expected_field_name",
            "transform": null,
            "confidence": 0.95
        }
    ],
    "analysis": "Brief explanation of what changed",
    "can_heal": true
}

## Rules
1. Match fields by analyzing similar names (e.g., "user_id" vs "uid"), compatible data types, and semantic meaning.
2. Set confidence between 0 and 1:
   - 1.0 = exact match or very obvious mapping
   - 0.8+ = high confidence based on naming similarity
   - 0.5-0.8 = moderate confidence, needs type checking
   - <0.5 = low confidence, mapping is uncertain
3. For transforms, use one of: null, "to_int", "to_str", "to_float", "to_bool", "parse_date".
4. If you cannot confidently map a field, set can_heal to false.

## Example
Expected: {"user_id": integer, "name": string}
Actual: {"uid": 123, "full_name": "John Doe"}
Error: "user_id: field required"

Output:
{
    "field_mappings": [
        {"source_field": "uid", "target_field": "user_id", "transform": null, "confidence": 0.9},
        {"source_field": "full_name", "target_field": "name", "transform": null, "confidence": 0.85}
    ],
    "analysis": "API renamed user_id to uid and name to full_name",
    "can_heal": true
}`

// buildUserPrompt renders the mismatch context for the service.
func buildUserPrompt(req *Request) string {
	var expected strings.Builder
	expected.WriteString("{\n")
	for i, field := range req.ExpectedFields {
		if i > 0 {
			expected.WriteString(",\n")
		}
		fmt.Fprintf(&expected, "  %q: %q", field.Name, field.Type)
	}
	expected.WriteString("\n}")

	return fmt.Sprintf(`## Expected Schema
%s

## Actual Response
%s

## Validation Error
%s

Analyze this mismatch and provide field mappings to heal it.`,
		expected.String(), string(req.RawPayload), req.ValidationError)
}
