package session

import "fmt"

// Topic suffixes: one push-channel address per session and event category.
const (
	TopicStory  = "story"
	TopicReveal = "reveal"
	TopicUsers  = "users"
	TopicTimer  = "timer"
	TopicVotes  = "votes"
)

// Topic builds the full push-channel address for a session and suffix, e.g.
// /topic/session/ABC123/story.
func Topic(sessionCode, suffix string) string {
	return fmt.Sprintf("/topic/session/%s/%s", sessionCode, suffix)
}

// SessionTopics lists every topic a live client session subscribes to.
func SessionTopics(sessionCode string) []string {
	suffixes := []string{TopicStory, TopicReveal, TopicUsers, TopicTimer, TopicVotes}
	topics := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		topics = append(topics, Topic(sessionCode, s))
	}
	return topics
}
