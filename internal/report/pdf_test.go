package report

import (
	"strings"
	"testing"
)

func TestBuildHTMLConvertsMarkdown(t *testing.T) {
	md := "# Research Gap Analysis Report\n\nSome text.\n\n| Combination | Papers |\n|---|---:|\n| A + B | 0 |\n"
	out, err := buildHTML("Gap Report", md)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<title>Gap Report</title>",
		"<h1",
		"Research Gap Analysis Report",
		"<table>",
		"<td>A + B</td>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestBuildHTMLDefaultTitleAndEscaping(t *testing.T) {
	out, err := buildHTML("  ", "plain text")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<title>Research Report</title>") {
		t.Fatalf("out = %s", out)
	}

	out, err = buildHTML("<script>", "x")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<title><script></title>") {
		t.Fatal("title not escaped")
	}
}
