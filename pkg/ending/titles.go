package ending

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nightline-game/nightline/pkg/scenario"
)

var titleCaser = cases.Title(language.English)

// Title returns the display title for an ending ID: the night's data-driven
// title table when an entry exists, otherwise a prettified form of the ID
// so an unmapped ending still renders something readable.
func Title(night *scenario.Night, endingID string) string {
	if night != nil {
		if title, ok := night.EndingTitles[endingID]; ok {
			return title
		}
	}
	cleaned := strings.TrimPrefix(endingID, "ending_")
	return titleCaser.String(strings.ReplaceAll(cleaned, "_", " "))
}
