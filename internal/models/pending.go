package models

// PhotoPending is the persisted metadata for a failed photo submission.
// It carries everything needed to reconstruct the original request, plus a
// reference to the retained file copy so the original image can be deleted
// without losing retry capability.
type PhotoPending struct {
	Endpoint     string            `json:"endpoint"`
	Headers      map[string]string `json:"headers"`
	Fields       map[string]string `json:"fields"`
	FilePath     string            `json:"file_path"`
	FileCopy     string            `json:"file_copy,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
	Error        string            `json:"error,omitempty"`
	ResponseText string            `json:"response_text,omitempty"`
	SavedAt      string            `json:"saved_at"`
}
