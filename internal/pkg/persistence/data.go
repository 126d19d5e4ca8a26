package persistence

import (
	"database/sql"
	"time"
)

type (

	// BatchData table - one uploaded batch of audio files
	BatchData struct {
		ID        string
		FileNames []string
		Created   time.Time
		Email     sql.NullString
		Params    map[string]string
		RequestID string
	}

	// Status information table - one row per file workflow instance
	Status struct {
		ID        string
		BatchID   string
		FileName  string
		Status    string
		Error     sql.NullString
		ErrorCode sql.NullString
		Created   time.Time
		Updated   time.Time
		Version   int
	}

	// StepData table - output of one completed pipeline step,
	// kept so a redelivered job resumes after the last completed step
	StepData struct {
		ID      string
		Step    string
		Output  []byte
		Created time.Time
	}

	// Analysis table - one persisted conversation analysis record
	Analysis struct {
		FileID                 string
		PriorityLevel          string
		RiskAssessment         string
		KeyInsights            string
		CriticalEntities       []string
		LocationsMentioned     []string
		SentimentSummary       string
		SourceReliability      string
		InformationCredibility string
		RecommendedActions     []string
		EntityRelationships    string
		Speakers               []string
		ConversationDuration   string
		AnalyzedAt             time.Time
		Created                time.Time
	}
)
