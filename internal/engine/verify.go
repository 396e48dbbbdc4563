package engine

import (
	"strings"

	"racehub/internal/domain"
)

// Outcome is the result of evaluating a text submission against a
// challenge's answer configuration.
type Outcome struct {
	// Accepted is true when the submission fully satisfies the challenge.
	Accepted bool
	// Partial is true when a checklist submission matched at least one
	// not-yet-satisfied item but items remain.
	Partial bool
	// Matched lists checklist items newly satisfied by this submission.
	Matched []string
}

// Evaluate judges a text submission. Matching is deliberately permissive:
// a case-folded substring containment check, so "The keyboard is here"
// satisfies an expected answer of "keyboard".
//
// For checklist challenges, progress holds the items already satisfied and
// is updated in place with newly matched items; re-submitting a satisfied
// item is a no-op, never an error. The photo and tournament methods never
// accept text submissions.
func Evaluate(v domain.Verification, text string, progress map[string]bool) Outcome {
	if v.Method != domain.MethodAnswer {
		return Outcome{}
	}

	answer := normalize(text)

	if len(v.ChecklistItems) > 0 {
		return evaluateChecklist(v.ChecklistItems, answer, progress)
	}

	if len(v.AcceptableAnswers) > 0 {
		for _, candidate := range v.AcceptableAnswers {
			if contains(answer, normalize(candidate)) {
				return Outcome{Accepted: true}
			}
		}
		return Outcome{}
	}

	expected := normalize(v.Answer)
	if expected == "" {
		return Outcome{}
	}

	// A comma-joined expected answer is a keyword list: every keyword must
	// appear in the submission, in any order.
	if strings.Contains(expected, ",") {
		for _, kw := range strings.Split(expected, ",") {
			if !contains(answer, strings.TrimSpace(kw)) {
				return Outcome{}
			}
		}
		return Outcome{Accepted: true}
	}

	return Outcome{Accepted: contains(answer, expected)}
}

// checklistStateValid reports whether stored progress only references items
// the challenge defines. A stray item means the saved state no longer fits
// the loaded course, typically a snapshot restored against an edited game
// file.
func checklistStateValid(v domain.Verification, progress map[string]bool) bool {
	for item := range progress {
		known := false
		for _, want := range v.ChecklistItems {
			if item == want {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}

func evaluateChecklist(items []string, answer string, progress map[string]bool) Outcome {
	var matched []string
	for _, item := range items {
		if progress[item] {
			continue
		}
		if contains(answer, normalize(item)) {
			progress[item] = true
			matched = append(matched, item)
		}
	}

	done := 0
	for _, item := range items {
		if progress[item] {
			done++
		}
	}

	return Outcome{
		Accepted: done == len(items),
		Partial:  len(matched) > 0 && done < len(items),
		Matched:  matched,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func contains(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}
