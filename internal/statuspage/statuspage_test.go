package statuspage

import (
	"strings"
	"testing"
)

func TestRenderListsGroups(t *testing.T) {
	html := Render([]GroupSummary{
		{Name: "mydb", PeerCount: 3},
		{Name: "otherdb", PeerCount: 1},
	}, 2)

	if !strings.Contains(html, "mydb") || !strings.Contains(html, "otherdb") {
		t.Fatalf("expected both group names rendered, got: %s", html)
	}
	if !strings.Contains(html, "live spill slots: 2") {
		t.Fatalf("expected slot count rendered, got: %s", html)
	}
}

func TestRenderEmptyGroups(t *testing.T) {
	html := Render(nil, 0)
	if !strings.Contains(html, "no active groups") {
		t.Fatalf("expected empty-state row, got: %s", html)
	}
}

func TestRenderEscapesGroupNames(t *testing.T) {
	html := Render([]GroupSummary{{Name: "<script>", PeerCount: 1}}, 0)
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected group name to be escaped, got: %s", html)
	}
}
