package probe

import (
	"github.com/listforge/dirwatch/internal/monitor"
)

// summarizeSelectors reduces per-field probes to the aggregate accuracy the
// alert policy thresholds on. An empty field mapping is a catalog
// configuration issue, not a site failure: accuracy 0, flagged.
func summarizeSelectors(fields map[string]monitor.FieldProbe, mappingSize int) monitor.SelectorResult {
	if mappingSize == 0 {
		return monitor.SelectorResult{ConfigIssue: true}
	}

	valid := 0
	for _, probe := range fields {
		if probe.SelectorValid {
			valid++
		}
	}
	return monitor.SelectorResult{
		Accuracy:   float64(valid) / float64(mappingSize),
		ValidCount: valid,
		TotalCount: mappingSize,
	}
}
