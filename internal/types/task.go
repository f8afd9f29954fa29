package types

// LeaseKeyPrefix prefixes the cache key that marks a resource's in-flight
// validation run.
const LeaseKeyPrefix = "validation_task:current:"

// LeaseKey returns the cache key holding the current task id for a resource.
func LeaseKey(resourceID string) string {
	return LeaseKeyPrefix + resourceID
}

// TaskSnapshot captures the executor-reported state of a validation task at
// one point in time. Successful is meaningful only once Ready is true.
type TaskSnapshot struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Ready      bool   `json:"ready"`
	Successful *bool  `json:"successful,omitempty"`
	Message    string `json:"message,omitempty"`
}
