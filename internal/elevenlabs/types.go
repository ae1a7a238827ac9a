package elevenlabs

// Webhook payloads for ElevenLabs conversational AI call events. The provider
// posts one event per lifecycle change; post_call events additionally carry
// the transcript and analysis output.

type WebhookEvent struct {
	Type           string          `json:"type"`
	EventTimestamp int64           `json:"event_timestamp"`
	Data           CallData        `json:"data"`
	Analysis       *AnalysisResult `json:"analysis,omitempty"`
}

type CallData struct {
	ConversationID string                 `json:"conversation_id"`
	AgentID        string                 `json:"agent_id"`
	Status         string                 `json:"status"`
	Transcript     []TranscriptTurn       `json:"transcript,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Analysis       *AnalysisResult        `json:"analysis,omitempty"`
}

type TranscriptTurn struct {
	Role    string  `json:"role"`
	Message string  `json:"message"`
	TimeIn  float64 `json:"time_in_call_secs"`
}

type AnalysisResult struct {
	CallSuccessful            string                 `json:"call_successful"`
	TranscriptSummary         string                 `json:"transcript_summary"`
	DataCollectionResults     map[string]interface{} `json:"data_collection_results,omitempty"`
	EvaluationCriteriaResults map[string]interface{} `json:"evaluation_criteria_results,omitempty"`
}

// CallerPhone digs the caller number out of the call metadata. The provider
// nests it under phone_call for telephony-originated conversations.
func (d CallData) CallerPhone() string {
	if d.Metadata == nil {
		return ""
	}
	if v, ok := d.Metadata["caller_number"].(string); ok && v != "" {
		return v
	}
	if pc, ok := d.Metadata["phone_call"].(map[string]interface{}); ok {
		if v, ok := pc["external_number"].(string); ok {
			return v
		}
	}
	return ""
}

// FlatTranscript joins transcript turns into a single readable block.
func (d CallData) FlatTranscript() string {
	out := ""
	for _, t := range d.Transcript {
		if t.Message == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += t.Role + ": " + t.Message
	}
	return out
}
