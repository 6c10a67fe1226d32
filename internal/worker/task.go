package worker

import "github.com/google/uuid"

// TaskType enumerates the background jobs the Runtime knows how to run.
type TaskType string

const (
	TaskAllocate     TaskType = "allocate"
	TaskSynthesize   TaskType = "synthesize"
	TaskProcessQueue TaskType = "process_queue"
	TaskReclaimIdle  TaskType = "reclaim_idle"
	TaskExpireLots   TaskType = "expire_lots"
)

// Task is one unit of background work. Only the fields relevant to Type
// are populated.
type Task struct {
	Type     TaskType
	VoiceID  uuid.UUID
	JobID    uuid.UUID
	Provider string
}

func (t Task) String() string {
	switch t.Type {
	case TaskAllocate:
		return string(t.Type) + "(" + t.VoiceID.String() + ")"
	case TaskSynthesize:
		return string(t.Type) + "(" + t.JobID.String() + ")"
	case TaskProcessQueue, TaskReclaimIdle:
		return string(t.Type) + "(" + t.Provider + ")"
	default:
		return string(t.Type)
	}
}
