package api

const (
	// PrmEmail - email request param
	PrmEmail = "email"
	// PrmFile - audio file request param
	PrmFile = "file"
	// PrmLanguage - expected conversation language request param
	PrmLanguage = "language"
)

// DefaultLanguage is the diarization language hint used for every file
const DefaultLanguage = "ru"
