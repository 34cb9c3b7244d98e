package stream

// TopicRouter determines which topics an event should be published to
type TopicRouter struct {
	topics    Topics
	threshold int
}

// NewTopicRouter creates a new topic router. Events with a confidence at or
// above threshold are also routed to the high-confidence topic.
func NewTopicRouter(topics Topics, threshold int) *TopicRouter {
	return &TopicRouter{
		topics:    topics,
		threshold: threshold,
	}
}

// Route returns the list of topics this event should be published to.
//
// Routing rules:
//   - ALL events go to topics.Classifications
//   - Events with ConfidenceLevel >= threshold also go to topics.HighConfidence
//     when that topic is configured
func (r *TopicRouter) Route(event ClassificationEvent) []string {
	topics := []string{r.topics.Classifications}

	if r.topics.HighConfidence != "" && event.ConfidenceLevel >= r.threshold {
		topics = append(topics, r.topics.HighConfidence)
	}

	return topics
}
