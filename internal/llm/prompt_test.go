package llm

import (
	"strings"
	"testing"

	"github.com/joseph-ayodele/kpi-extractor/constants"
)

func TestBuildExtractionPrompt(t *testing.T) {
	cat := constants.DefaultCatalog()
	single := BuildExtractionPrompt(cat, false)
	multi := BuildExtractionPrompt(cat, true)

	for _, name := range cat.Names() {
		if !strings.Contains(single, "- "+name) {
			t.Fatalf("single prompt misses %q", name)
		}
		if !strings.Contains(multi, "- "+name) {
			t.Fatalf("multi prompt misses %q", name)
		}
	}
	if !strings.Contains(single, "BL Date (date as YYYY-MM-DD)") {
		t.Fatalf("date hint missing:\n%s", single)
	}
	if !strings.Contains(single, `"N/A"`) {
		t.Fatal("prompt should name the missing sentinel")
	}
	if strings.Contains(single, "Analyze all documents together") {
		t.Fatal("single prompt must not carry the multi-document instruction")
	}
	if !strings.Contains(multi, "Analyze all documents together") {
		t.Fatal("multi prompt must carry the multi-document instruction")
	}
	if BuildExtractionPrompt(cat, false) != single {
		t.Fatal("prompt is not stable")
	}
}
