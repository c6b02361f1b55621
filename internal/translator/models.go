package translator

import "llm-gateway/internal/models"

// ModelList mirrors the OpenAI GET /models response.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// ModelEntry describes one served model.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// FromModels builds the model listing.
func FromModels(infos []models.ModelInfo) ModelList {
	data := make([]ModelEntry, 0, len(infos))
	for _, info := range infos {
		data = append(data, ModelEntry{ID: info.ID, Object: "model", OwnedBy: info.Provider})
	}
	return ModelList{Object: "list", Data: data}
}
