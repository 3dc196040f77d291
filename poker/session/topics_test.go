package session

import "testing"

func TestTopic(t *testing.T) {
	got := Topic("ABC123", TopicStory)
	want := "/topic/session/ABC123/story"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestSessionTopics(t *testing.T) {
	topics := SessionTopics("XYZ789")
	if len(topics) != 5 {
		t.Fatalf("Expected 5 topics, got %d", len(topics))
	}

	want := map[string]bool{
		"/topic/session/XYZ789/story":  true,
		"/topic/session/XYZ789/reveal": true,
		"/topic/session/XYZ789/users":  true,
		"/topic/session/XYZ789/timer":  true,
		"/topic/session/XYZ789/votes":  true,
	}
	for _, topic := range topics {
		if !want[topic] {
			t.Errorf("Unexpected topic %q", topic)
		}
	}
}
