// Package publisher holds helpers shared by the topic publishers.
package publisher

// Attributer is implemented by payloads that carry routing attributes.
type Attributer interface {
	Attributes() map[string]string
}

// AttributesOf returns a fresh attribute map for payload, empty when the
// payload carries none.
func AttributesOf(payload any) map[string]string {
	out := map[string]string{}
	if a, ok := payload.(Attributer); ok {
		for k, v := range a.Attributes() {
			out[k] = v
		}
	}
	return out
}
