package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"jobportal/internal/database"
)

// JobsChannel is the redis pub/sub channel carrying job events.
const JobsChannel = "jobportal:jobs"

const TypeJobCreated = "job.created"

// JobView is the wire form of a job; it matches the JSON returned by /job.
type JobView struct {
	ID          uint      `json:"id"`
	CompanyName string    `json:"companyName"`
	JobTitle    string    `json:"jobTitle"`
	Description string    `json:"description"`
	Salary      float64   `json:"salary"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewJobView converts a stored job.
func NewJobView(j database.Job) JobView {
	return JobView{
		ID:          j.ID,
		CompanyName: j.CompanyName,
		JobTitle:    j.Title,
		Description: j.Description,
		Salary:      j.Salary,
		CreatedBy:   j.CreatedBy,
		CreatedAt:   j.CreatedAt,
	}
}

// JobEvent 是推送给 WebSocket 客户端的消息。
type JobEvent struct {
	Type string  `json:"type"`
	Job  JobView `json:"job"`
}

// Feed 广播新建的招聘信息。配置了 Redis 时通过 Pub/Sub 在多个 API 实例间转发，
// 否则只在进程内分发。
type Feed struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewFeed returns a Feed. rdb may be nil.
func NewFeed(rdb *redis.Client, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{rdb: rdb, logger: logger, subs: make(map[chan []byte]struct{})}
}

// PublishJobCreated announces job to every subscriber.
func (f *Feed) PublishJobCreated(ctx context.Context, job database.Job) error {
	payload, err := json.Marshal(JobEvent{Type: TypeJobCreated, Job: NewJobView(job)})
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	if f.rdb != nil {
		if err := f.rdb.Publish(ctx, JobsChannel, payload).Err(); err != nil {
			return fmt.Errorf("publish job event: %w", err)
		}
		return nil
	}
	f.broadcast(payload)
	return nil
}

func (f *Feed) broadcast(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- payload:
		default:
			// slow consumer; drop rather than block the publisher
		}
	}
}

// Subscribe returns a stream of encoded JobEvent messages. The stream is
// closed when ctx is done.
func (f *Feed) Subscribe(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 16)

	if f.rdb != nil {
		pubsub := f.rdb.Subscribe(ctx, JobsChannel)
		go func() {
			defer close(out)
			defer pubsub.Close()
			ch := pubsub.Channel()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						f.logger.Warn("job feed pubsub channel closed")
						return
					}
					select {
					case out <- []byte(msg.Payload):
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out
	}

	f.mu.Lock()
	f.subs[out] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, out)
		close(out)
		f.mu.Unlock()
	}()
	return out
}
