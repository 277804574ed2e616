package change

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// smallChangeWords is the per-side threshold below which the summary
	// quotes the changed phrases verbatim instead of reporting counts.
	smallChangeWords = 3
	// maxExamplePhrases caps the structured example lists.
	maxExamplePhrases = 3
	// exampleWordLimit truncates the single illustrative phrase embedded in
	// a count-based summary.
	exampleWordLimit = 8
)

// diffWords computes a word-level diff between two snippets. Each contiguous
// run of removed or added words comes back as one phrase, in document order.
// The diff library works on characters, so every word is first mapped onto a
// placeholder rune through its line-diff helpers.
func diffWords(prevText, currText string) (removed, added []string) {
	dmp := diffmatchpatch.New()
	encodedPrev, encodedCurr, tokens := dmp.DiffLinesToChars(wordTokens(prevText), wordTokens(currText))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(encodedPrev, encodedCurr, false), tokens)

	for _, d := range diffs {
		words := strings.Fields(d.Text)
		if len(words) == 0 {
			continue
		}
		phrase := strings.Join(words, " ")
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			removed = append(removed, phrase)
		case diffmatchpatch.DiffInsert:
			added = append(added, phrase)
		}
	}
	return removed, added
}

// wordTokens rewrites a snippet so each word occupies its own line. The
// trailing newline keeps the final word's token identical to mid-text
// occurrences of the same word.
func wordTokens(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, "\n") + "\n"
}

func textSummary(removed, added []string, removedCount, addedCount int) string {
	switch {
	case removedCount == 0 && addedCount == 0:
		// Hashes differ but the 512-rune snippets agree, so the change sits
		// past the stored window.
		return "Text changed beyond the stored snippet"
	case removedCount <= smallChangeWords && addedCount <= smallChangeWords:
		switch {
		case removedCount == 0:
			return fmt.Sprintf("added %q", strings.Join(added, " "))
		case addedCount == 0:
			return fmt.Sprintf("removed %q", strings.Join(removed, " "))
		default:
			return fmt.Sprintf("%q → %q", strings.Join(removed, " "), strings.Join(added, " "))
		}
	default:
		example := firstPhrase(removed, added)
		return fmt.Sprintf("%s removed, %s added (e.g. %q)",
			wordCountLabel(removedCount), wordCountLabel(addedCount), truncatePhrase(example, exampleWordLimit))
	}
}

func firstPhrase(removed, added []string) string {
	if len(removed) > 0 {
		return removed[0]
	}
	if len(added) > 0 {
		return added[0]
	}
	return ""
}

func truncatePhrase(phrase string, maxWords int) string {
	words := strings.Fields(phrase)
	if len(words) <= maxWords {
		return phrase
	}
	return strings.Join(words[:maxWords], " ") + " ..."
}

func wordCountLabel(n int) string {
	if n == 1 {
		return "1 word"
	}
	return fmt.Sprintf("%d words", n)
}

func phraseWordCount(phrases []string) int {
	total := 0
	for _, p := range phrases {
		total += len(strings.Fields(p))
	}
	return total
}

func capExamples(phrases []string) []string {
	if len(phrases) == 0 {
		return nil
	}
	if len(phrases) > maxExamplePhrases {
		phrases = phrases[:maxExamplePhrases]
	}
	return phrases
}
