package publisher

import "testing"

type tagged struct{}

func (tagged) Attributes() map[string]string { return map[string]string{"run_id": "r1"} }

func TestAttributesOf(t *testing.T) {
	t.Parallel()

	got := AttributesOf(tagged{})
	if got["run_id"] != "r1" {
		t.Fatalf("expected run_id attribute, got %v", got)
	}
	got["run_id"] = "changed"
	if AttributesOf(tagged{})["run_id"] != "r1" {
		t.Fatal("expected a fresh map per call")
	}
	if len(AttributesOf("plain")) != 0 {
		t.Fatal("expected no attributes for plain payload")
	}
}
