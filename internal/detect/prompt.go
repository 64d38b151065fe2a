package detect

import "fmt"

const promptTemplate = `Watch this video carefully and determine whether a %s is visible at any point. ` +
	`Look closely at the whole frame, including edges and background. ` +
	`Respond with a JSON object: {"detected": true/false, "description": "<one or two sentences describing what you observed>"}`

// BuildPrompt returns the detection prompt for the named object.
func BuildPrompt(objectName string) string {
	return fmt.Sprintf(promptTemplate, objectName)
}
