package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ConversationAnalysis is the structured record extracted from one conversation.
// Field set and controlled vocabularies follow the NATO source evaluation scheme:
// source reliability A-F, information credibility 1-6
type ConversationAnalysis struct {
	PriorityLevel          string   `json:"priority_level"`
	RiskAssessment         string   `json:"risk_assessment"`
	KeyInsights            string   `json:"key_insights"`
	CriticalEntities       []string `json:"critical_entities"`
	LocationsMentioned     []string `json:"locations_mentioned"`
	SentimentSummary       string   `json:"sentiment_summary"`
	SourceReliability      string   `json:"source_reliability"`
	InformationCredibility string   `json:"information_credibility"`
	RecommendedActions     []string `json:"recommended_actions"`
	EntityRelationships    string   `json:"entity_relationships"`
	Speakers               []string `json:"speakers"`
	ConversationDuration   string   `json:"conversation_duration"`
	AnalyzedAt             string   `json:"analyzed_at"`
}

var (
	reliabilityCodes = map[string]bool{"A": true, "B": true, "C": true, "D": true, "E": true, "F": true}
	credibilityCodes = map[string]bool{"1": true, "2": true, "3": true, "4": true, "5": true, "6": true}
)

// Decode parses data into a ConversationAnalysis and validates it.
// The gate is strict: a record that parses syntactically but violates
// field typing or controlled vocabularies must fail, not degrade
func Decode(data []byte) (*ConversationAnalysis, error) {
	var res ConversationAnalysis
	d := json.NewDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()
	if err := d.Decode(&res); err != nil {
		return nil, fmt.Errorf("can't decode analysis: %w", err)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return &res, nil
}

// Validate checks the record against its declared schema
func (ca *ConversationAnalysis) Validate() error {
	for _, f := range []struct {
		name  string
		value []string
	}{
		{"critical_entities", ca.CriticalEntities},
		{"locations_mentioned", ca.LocationsMentioned},
		{"recommended_actions", ca.RecommendedActions},
		{"speakers", ca.Speakers},
	} {
		if f.value == nil {
			return fmt.Errorf("missing field '%s'", f.name)
		}
	}
	if !reliabilityCodes[ca.SourceReliability] {
		return fmt.Errorf("source_reliability '%s' not in A-F", ca.SourceReliability)
	}
	if !credibilityCodes[ca.InformationCredibility] {
		return fmt.Errorf("information_credibility '%s' not in 1-6", ca.InformationCredibility)
	}
	if _, err := ParseAnalyzedAt(ca.AnalyzedAt); err != nil {
		return err
	}
	return nil
}

// ParseAnalyzedAt parses the analyzed_at value, accepting the "Z" UTC suffix
func ParseAnalyzedAt(s string) (time.Time, error) {
	res, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("can't parse analyzed_at '%s': %w", s, err)
	}
	return res, nil
}
