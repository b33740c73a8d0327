// ABOUTME: Prompt templates for the model-backed stages.
package stages

import (
	"fmt"
	"strings"

	"github.com/autosci/orchestrator/workflow"
)

const discoverSystemPrompt = `You are a research data engineer. Given an analysis goal,
propose one public dataset that can serve it. Prefer direct CSV download URLs.
Reply with a single JSON object, no prose:
{"locator": "<url or kaggle:owner/dataset>", "kind": "direct" | "kaggle", "reason": "<one sentence>"}`

func discoverUserPrompt(goal string, exclusions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis goal: %s\n", goal)
	if len(exclusions) > 0 {
		b.WriteString("Do NOT propose any of these previously rejected sources:\n")
		for _, e := range exclusions {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}

const analysisSystemPrompt = `You are a data analyst writing a standalone Python script.
The script loads the dataset with pandas, performs exploratory analysis relevant to the
stated goal (shape, dtypes, missing values, key distributions, correlations), and prints
its findings. Use only pandas, numpy, and matplotlib. The script must keep the loaded
DataFrame in a module-level variable. Output only Python code.`

func analysisUserPrompt(goal string, src workflow.SourceRef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nDataset locator (%s): %s\n", goal, src.LocatorKind, src.Locator)
	if preview := src.Auxiliary[AuxPreview]; preview != "" {
		fmt.Fprintf(&b, "First bytes of the file:\n```\n%s\n```\n", preview)
	}
	return b.String()
}

const trainingSystemPrompt = `You are an ML engineer writing a standalone Python script.
The script trains a baseline scikit-learn model for the stated goal against a DataFrame
named df that is already loaded with the given columns. Split train/test, fit, and print
evaluation metrics. Do not reload the dataset. Output only Python code.`

func trainingUserPrompt(goal string, src workflow.SourceRef) string {
	cols := "unknown; inspect df.columns defensively"
	if len(src.CapturedSchema) > 0 {
		cols = strings.Join(src.CapturedSchema, ", ")
	}
	return fmt.Sprintf("Goal: %s\nAvailable columns: %s\n", goal, cols)
}

const correctSystemPrompt = `You are a Python debugger. You receive a script and the logs
of its failed run. Return the full corrected script, changing as little as possible.
Output only Python code, never an explanation.`

func correctUserPrompt(code, failureLog string) string {
	return fmt.Sprintf("Script:\n```python\n%s\n```\n\nFailure logs:\n```\n%s\n```\n", code, failureLog)
}
