package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeImagePurge = "image:purge"
)

// ImagePurgePayload 描述一次待重试的图片文件删除。
type ImagePurgePayload struct {
	Path          string `json:"path"`
	CorrelationID string `json:"correlation_id"`
}

// NewImagePurgeTask 构造一个删除已孤立图片文件的任务。
func NewImagePurgeTask(path, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ImagePurgePayload{
		Path:          path,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeImagePurge, payload), nil
}

// ParseImagePurge decodes the payload of an image:purge task.
func ParseImagePurge(t *asynq.Task) (ImagePurgePayload, error) {
	var p ImagePurgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return ImagePurgePayload{}, fmt.Errorf("decode %s payload: %w", TypeImagePurge, err)
	}
	return p, nil
}
