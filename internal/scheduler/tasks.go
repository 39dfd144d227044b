package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskInsightsGenerate = "insights.generate"

const TaskInsightsGeneratePart = "insights.generate_part"

type InsightsGeneratePayload struct {
	ClientID  int64  `json:"clientId"`
	CompanyID int64  `json:"companyId"`
	ClinicID  *int64 `json:"clinicId,omitempty"`
}

type InsightsGeneratePartPayload struct {
	ClientID  int64  `json:"clientId"`
	CompanyID int64  `json:"companyId"`
	ClinicID  *int64 `json:"clinicId,omitempty"`
	Part      string `json:"part"`
}

func NewInsightsGenerateTask(payload InsightsGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInsightsGenerate, data), nil
}

func ParseInsightsGeneratePayload(task *asynq.Task) (InsightsGeneratePayload, error) {
	var payload InsightsGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return InsightsGeneratePayload{}, err
	}
	return payload, nil
}

func NewInsightsGeneratePartTask(payload InsightsGeneratePartPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInsightsGeneratePart, data), nil
}

func ParseInsightsGeneratePartPayload(task *asynq.Task) (InsightsGeneratePartPayload, error) {
	var payload InsightsGeneratePartPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return InsightsGeneratePartPayload{}, err
	}
	return payload, nil
}
