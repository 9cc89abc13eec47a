package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/pixelprep/internal/domain"
)

const TypePreprocessTensor = "tensor:preprocess"

type PreprocessPayload struct {
	JobID       string                 `json:"job_id"`
	UserID      string                 `json:"user_id,omitempty"`
	SourceType  string                 `json:"source_type"`
	WebhookURL  string                 `json:"webhook_url,omitempty"`
	ObjectKey   string                 `json:"object_key"`
	Pipeline    []domain.TransformStep `json:"pipeline"`
	RequestedAt time.Time              `json:"requested_at"`
}

func NewPreprocessTask(payload PreprocessPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal preprocess payload: %w", err)
	}
	return asynq.NewTask(TypePreprocessTensor, body), nil
}

func ParsePreprocessPayload(task *asynq.Task) (PreprocessPayload, error) {
	var payload PreprocessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PreprocessPayload{}, fmt.Errorf("unmarshal preprocess payload: %w", err)
	}
	if payload.JobID == "" {
		return PreprocessPayload{}, fmt.Errorf("preprocess payload has no job_id")
	}
	return payload, nil
}
