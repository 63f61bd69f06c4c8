package handlers

// Aliases exposing request/response shapes to the external test package.
type (
	StoryResponse  = storyResponse
	EditRequest    = editRequest
	EditResponse   = editResponse
	VersionPayload = versionPayload
	ExportRequest  = exportRequest
)
