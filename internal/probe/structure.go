package probe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/listforge/dirwatch/internal/monitor"
)

const fieldElements = "input, select, textarea"

// analyzeStructure extracts form metadata and resolves every catalog selector
// against the sanitized document. A panic anywhere inside (cascadia rejects
// some selector syntax by panicking) is converted into a failed result.
func analyzeStructure(doc *goquery.Document, fieldMapping map[string]string) (out monitor.StructureResult) {
	defer func() {
		if r := recover(); r != nil {
			out = monitor.StructureResult{Status: "failed", Err: fmt.Sprintf("structure analysis panic: %v", r)}
		}
	}()

	out = monitor.StructureResult{Status: "ok", Fields: make(map[string]monitor.FieldProbe, len(fieldMapping))}

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")
		method, ok := form.Attr("method")
		if !ok || method == "" {
			method = "get"
		}
		out.Forms = append(out.Forms, monitor.FormInfo{
			Action:     action,
			Method:     strings.ToLower(method),
			FieldCount: form.Find(fieldElements).Length(),
		})
	})
	out.FormCount = len(out.Forms)

	for field, selector := range fieldMapping {
		out.Fields[field] = resolveSelector(doc, selector)
	}

	out.MultiStepLikely, out.MultiStepSignals = inferMultiStep(doc)
	return out
}

// resolveSelector runs one CSS selector against the document. Invalid
// selector syntax is a configuration problem, reported as an invalid field
// rather than a failed check.
func resolveSelector(doc *goquery.Document, selector string) (probe monitor.FieldProbe) {
	defer func() {
		if r := recover(); r != nil {
			probe = monitor.FieldProbe{}
		}
	}()

	matches := doc.Find(selector)
	count := matches.Length()
	if count == 0 {
		return monitor.FieldProbe{}
	}

	seen := make(map[string]bool)
	var tags []string
	matches.Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			if !seen[node.Data] {
				seen[node.Data] = true
				tags = append(tags, node.Data)
			}
		}
	})
	sort.Strings(tags)

	return monitor.FieldProbe{SelectorValid: true, ElementCount: count, ElementTags: tags}
}

// multi-step hints mirrored from the submission toolkit: wizard markup,
// step datasets, and next/continue submit buttons.
var stepSubmitTerms = []string{"next", "continue", "step", "proceed"}

func inferMultiStep(doc *goquery.Document) (bool, []string) {
	var signals []string

	for _, marker := range []string{"[data-step]", ".form-step", "[class*=wizard]", "[role=progressbar]"} {
		if doc.Find(marker).Length() > 0 {
			signals = append(signals, "dom:"+marker)
		}
	}

	doc.Find("form button, form input[type=submit]").Each(func(_ int, sel *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(sel.AttrOr("value", "")))
		}
		for _, term := range stepSubmitTerms {
			if strings.Contains(text, term) {
				signals = append(signals, "submit-text:"+text)
				return
			}
		}
	})

	if doc.Find("form").Length() > 1 {
		signals = append(signals, "multiple-forms-on-page")
	}

	return len(signals) > 0, dedupe(signals)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// fingerprint digests the form structure so snapshots can be compared and
// archived captures named deterministically.
func fingerprint(forms []monitor.FormInfo) string {
	if len(forms) == 0 {
		return ""
	}
	canonical, err := json.Marshal(forms)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
